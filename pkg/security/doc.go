/*
Package security provides transport security (TLS/mTLS), secret management,
and authentication for the relay proxy.

# TLS Configuration

Configure TLS for the proxy server:

	cfg := &tls.Config{
		Enabled:  true,
		CertFile: "/etc/relay/certs/server.crt",
		KeyFile:  "/etc/relay/certs/server.key",
		MinVersion: "1.3",
	}

	tlsConfig, err := cfg.ToTLSConfig()
	if err != nil {
		log.Fatal(err)
	}

# Secret Management

Load secrets from multiple providers:

	fileProvider, err := secrets.NewFileProvider("/var/secrets", true)
	if err != nil {
		log.Fatal(err)
	}
	manager := secrets.NewManager([]secrets.SecretProvider{
		secrets.NewEnvProvider("RELAY_SECRET_"),
		fileProvider,
	}, cacheConfig)

	credentialKey, err := manager.GetSecret(ctx, "mirror-credential-key")
	if err != nil {
		log.Fatal(err)
	}

# API Key Authentication

Validate API keys in HTTP middleware:

	validator := auth.NewAPIKeyValidator(apiKeys)
	middleware := auth.NewAPIKeyMiddleware(validator, sources)

	http.Handle("/", middleware.Handle(handler))
*/
package security
