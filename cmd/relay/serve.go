package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"relaydock/relay/pkg/admin"
	"relaydock/relay/pkg/cli"
	"relaydock/relay/pkg/config"
	"relaydock/relay/pkg/mirror"
	"relaydock/relay/pkg/prober"
	"relaydock/relay/pkg/proxy"
	"relaydock/relay/pkg/security/auth"
	"relaydock/relay/pkg/security/secrets"
	"relaydock/relay/pkg/server"
	"relaydock/relay/pkg/store"
	"relaydock/relay/pkg/telemetry/health"
	"relaydock/relay/pkg/telemetry/logging"
	"relaydock/relay/pkg/telemetry/metrics"
	"relaydock/relay/pkg/telemetry/tracing"
	"relaydock/relay/pkg/tokenbroker"
	"relaydock/relay/pkg/traffic"
)

var serveFlags struct {
	dryRun bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the registry mirror proxy",
	Long: `Start the relay proxy server: the health-aware mirror registry,
token broker, streaming engine, traffic recorder, and Admin API, all
behind one HTTP listener.

Examples:
  relay serve
  relay serve --config /etc/relay/config.yaml
  relay serve --config /etc/relay/config.yaml --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate configuration and exit without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}

	if serveFlags.dryRun {
		fmt.Println("configuration valid:", cfgFile)
		return nil
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    logging.LogFormat(cfg.Telemetry.Logging.Format),
		AddSource: cfg.Telemetry.Logging.AddSource,
		RedactPII: cfg.Telemetry.Logging.RedactPII,
	})
	if err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("initializing logger: %w", err))
	}
	defer logger.Shutdown()

	// Every component below still builds its own slog.Default().With(...)
	// logger rather than taking *logging.Logger directly (see engine.go,
	// prober.go); installing the redacting handler as the process default
	// here, before any of them are constructed, is what makes the
	// credential redactor actually run on their log lines.
	slog.SetDefault(logger.Slog())

	st, err := buildStore(cfg.Store)
	if err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("opening store: %w", err))
	}
	defer st.Close()

	encryptor, err := buildEncryptor(cfg.Security.Secrets)
	if err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("initializing credential encryption: %w", err))
	}

	reg := mirror.NewRegistry()
	if err := seedRegistry(reg, st, encryptor, cfg.Mirrors); err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("seeding mirror registry: %w", err))
	}

	prb := prober.NewProber(reg, &http.Client{Timeout: cfg.Probe.Timeout}, prober.Config{
		Interval:         cfg.Probe.Interval,
		CronSchedule:     cfg.Probe.CronSchedule,
		Timeout:          cfg.Probe.Timeout,
		Jitter:           cfg.Probe.Jitter,
		FailureThreshold: cfg.Probe.FailureThreshold,
		SlowThreshold:    cfg.Probe.SlowThreshold,
	})

	broker := tokenbroker.NewBroker(tokenbroker.Config{
		Capacity:     cfg.TokenCache.Capacity,
		SafetyMargin: cfg.TokenCache.SafetyMargin,
		DefaultTTL:   cfg.TokenCache.DefaultTTL,
		RealmTimeout: cfg.TokenCache.RealmTimeout,
	}, &http.Client{Timeout: cfg.TokenCache.RealmTimeout})

	recorder := traffic.NewRecorder(st, traffic.Config{
		QueueCapacity: cfg.Traffic.QueueCapacity,
		BatchSize:     cfg.Traffic.BatchSize,
		BatchInterval: cfg.Traffic.BatchInterval,
	})
	defer recorder.Close()

	engine := proxy.NewEngine(proxy.EngineConfig{
		DefaultPrefix:     cfg.Proxy.DefaultPrefix,
		MaxRedirects:      cfg.Proxy.MaxRedirects,
		StreamIdleTimeout: cfg.Proxy.StreamIdleTimeout,
	}, proxy.ClientConfig{
		ConnectTimeout:        cfg.Proxy.ConnectTimeout,
		UpstreamHeaderTimeout: cfg.Proxy.UpstreamHeaderTimeout,
		IdleConnsPerHost:      cfg.Proxy.IdleConnsPerHost,
		MaxConnsPerHost:       cfg.Proxy.MaxConnsPerHost,
	}, reg, broker, recorder)

	adminAPI := admin.NewAPI(admin.Config{
		BasePath:            cfg.Admin.BasePath,
		DefaultHistoryLimit: cfg.Admin.DefaultHistoryLimit,
		MaxHistoryLimit:     cfg.Admin.MaxHistoryLimit,
	}, reg, st, prb, encryptor, nil)

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("store", func(ctx context.Context) error {
		_, err := st.Stats()
		return err
	})

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		engine.SetCollector(collector)
		prb.SetCollector(collector)
		broker.SetCollector(collector)
	}

	var tracer *tracing.Tracer
	if cfg.Telemetry.Tracing.Enabled {
		tracer, err = tracing.New(&cfg.Telemetry.Tracing)
		if err != nil {
			return cli.NewCommandError("serve", fmt.Errorf("initializing tracer: %w", err))
		}
		defer tracer.Shutdown(context.Background())
		engine.SetTracer(tracer)
	}

	var authMW *auth.APIKeyMiddleware
	if len(cfg.Admin.APIKeys) > 0 {
		keys := make([]*auth.APIKeyInfo, 0, len(cfg.Admin.APIKeys))
		for _, k := range cfg.Admin.APIKeys {
			keys = append(keys, &auth.APIKeyInfo{Key: k, Enabled: true})
		}
		validator := auth.NewAPIKeyValidator(keys)
		authMW = auth.NewAPIKeyMiddleware(validator, []auth.APIKeySource{
			{Type: auth.SourceHeader, Name: "Authorization", Scheme: "Bearer"},
		})
	}

	srv := server.NewServer(&cfg.Proxy, &cfg.Security.TLS, server.Options{
		Proxy:     engine,
		Admin:     adminAPI.Routes(),
		Checker:   checker,
		Collector: collector,
		AuthMW:    authMW,
	})

	ctx := cli.SetupSignalHandler()

	// Run one probe sweep synchronously before serving, the same way the
	// original proxy ran its speed test at startup: without it every
	// freshly seeded mirror sits at Health=unknown with no measured
	// latency until the first scheduled sweep (up to Probe.Interval
	// later), so selection can't yet rank mirrors by speed and an
	// unreachable mirror stays selectable until its first failed probe.
	logger.Info("running startup probe sweep", "mirrors", len(reg.List()))
	prb.ProbeAll(ctx)

	if err := prb.Start(ctx); err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("starting prober: %w", err))
	}
	defer prb.Stop()

	if existing, err := st.Stats(); err == nil && existing.TotalBytes > 0 {
		logger.Info("relay starting",
			"listen_address", cfg.Proxy.ListenAddress,
			"mirrors", len(reg.List()),
			"bytes_served_to_date", humanize.Bytes(uint64(existing.TotalBytes)))
	} else {
		logger.Info("relay starting", "listen_address", cfg.Proxy.ListenAddress, "mirrors", len(reg.List()))
	}

	return srv.Start(ctx)
}

func buildStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite", "":
		return store.NewSQLiteStore(store.SQLiteConfig{
			Path:         cfg.Path,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
			WALMode:      cfg.WALMode,
			BusyTimeout:  cfg.BusyTimeout,
			PureGo:       cfg.PureGo,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildEncryptor resolves the credential-at-rest encryption key per
// cfg.KeyProvider and wraps it in an AESEncryptor. A missing or empty key
// falls back to admin.PlaintextEncryptor so a fresh install without a key
// configured still starts (mirrors with basic auth should not be added
// until a real key is set).
func buildEncryptor(cfg config.SecretsConfig) (admin.Encryptor, error) {
	var key string

	switch cfg.KeyProvider {
	case "file":
		if cfg.KeyFile == "" {
			return admin.PlaintextEncryptor{}, nil
		}
		provider, err := secrets.NewFileProvider(filepath.Dir(cfg.KeyFile), cfg.WatchKeyFile)
		if err != nil {
			return nil, err
		}
		key, err = provider.GetSecret(context.Background(), filepath.Base(cfg.KeyFile))
		if err != nil {
			return admin.PlaintextEncryptor{}, nil
		}
	default:
		envVar := cfg.EnvVar
		if envVar == "" {
			envVar = "RELAY_CREDENTIAL_KEY"
		}
		provider := secrets.NewEnvProvider("")
		var err error
		key, err = provider.GetSecret(context.Background(), envVar)
		if err != nil {
			return admin.PlaintextEncryptor{}, nil
		}
	}

	return secrets.NewAESEncryptor(key)
}

// seedRegistry loads mirrors from the store; if the store is empty, it
// falls back to the config file's seed list and persists it so the store
// becomes authoritative from then on.
func seedRegistry(reg *mirror.Registry, st store.Store, enc admin.Encryptor, seeds []config.MirrorSeed) error {
	rows, err := st.LoadMirrors(5 * time.Second)
	if err != nil {
		return err
	}

	if len(rows) == 0 && len(seeds) > 0 {
		for _, s := range seeds {
			var encPass []byte
			if s.AuthPass != "" {
				encPass, err = enc.Encrypt(s.AuthPass)
				if err != nil {
					return err
				}
			}
			row := store.MirrorRow{
				Prefix:       s.Prefix,
				UpstreamURL:  s.UpstreamURL,
				UpstreamHost: s.UpstreamHost,
				AuthKind:     s.AuthKind,
				AuthUser:     s.AuthUser,
				AuthPassEncrypted: encPass,
				Enabled:      true,
				Health:       string(mirror.HealthUnknown),
			}
			stored, err := st.UpsertMirror(row)
			if err != nil {
				return err
			}
			rows = append(rows, stored)
		}
	}

	mirrors := make([]mirror.Mirror, 0, len(rows))
	for _, row := range rows {
		authPass := ""
		if len(row.AuthPassEncrypted) > 0 {
			authPass, err = enc.Decrypt(row.AuthPassEncrypted)
			if err != nil {
				return fmt.Errorf("decrypting credentials for mirror %q: %w", row.Prefix, err)
			}
		}
		m := mirror.Mirror{
			ID:                  row.ID,
			Prefix:              row.Prefix,
			UpstreamURL:         row.UpstreamURL,
			UpstreamHost:        row.UpstreamHost,
			AuthKind:            mirror.AuthKind(row.AuthKind),
			AuthUser:            row.AuthUser,
			AuthPass:            authPass,
			Enabled:             row.Enabled,
			Health:              mirror.Health(row.Health),
			LatencyMS:           float64(row.LatencyMS),
			ConsecutiveFailures: row.ConsecutiveFailures,
		}
		if row.LastProbeAt != nil {
			m.LastProbeAt = *row.LastProbeAt
		}
		mirrors = append(mirrors, m)
	}

	reg.Seed(mirrors)
	return nil
}
