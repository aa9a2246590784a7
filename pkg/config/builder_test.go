package config

// Test fixtures shared by the package's tests. NewTestConfig produces a
// config that passes Validate so individual tests only mutate the field
// under test.

func NewTestConfig() *Config {
	cfg := &Config{
		Mirrors: []MirrorSeed{{
			Prefix:       "dockerhub",
			UpstreamURL:  "https://registry-1.docker.io",
			UpstreamHost: "registry-1.docker.io",
		}},
	}
	ApplyDefaults(cfg)
	return cfg
}
