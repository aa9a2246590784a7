package admin

import (
	"context"
	"log/slog"
	"net/http"

	"relaydock/relay/pkg/mirror"
	"relaydock/relay/pkg/store"
)

// Config controls Admin API surface behavior (mirrors config.AdminConfig;
// duplicated as plain fields to avoid an import-time dependency on
// pkg/config).
type Config struct {
	BasePath            string
	DefaultHistoryLimit int
	MaxHistoryLimit     int
}

// Prober is the subset of pkg/prober.Prober the Admin API needs to
// trigger an on-demand sweep.
type Prober interface {
	ProbeAll(ctx context.Context)
}

// MirrorSource is the opaque third-party scraper collaborator. The real
// scraper is out of scope; NoopMirrorSource is the only implementation
// this repo ships.
type MirrorSource interface {
	Scrape(ctx context.Context) error
}

// NoopMirrorSource satisfies MirrorSource without doing anything. It is
// the default wired into API when no real scraper is configured.
type NoopMirrorSource struct{}

func (NoopMirrorSource) Scrape(ctx context.Context) error { return nil }

// Encryptor encrypts/decrypts mirror Basic-auth passwords for storage.
// cmd/relay wires a real implementation backed by pkg/security/secrets;
// tests and NewAPI's zero value use PlaintextEncryptor.
type Encryptor interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(ciphertext []byte) (string, error)
}

// PlaintextEncryptor performs no encryption. cmd/relay's serve wiring
// uses an AES-GCM Encryptor when a credential-encryption key is
// available and falls back to PlaintextEncryptor when no key is
// configured or the key cannot be loaded.
type PlaintextEncryptor struct{}

func (PlaintextEncryptor) Encrypt(plaintext string) ([]byte, error) { return []byte(plaintext), nil }
func (PlaintextEncryptor) Decrypt(ciphertext []byte) (string, error) { return string(ciphertext), nil }

// API mutates the live mirror registry (the authoritative routing state
// the proxy engine reads) and mirrors every change into the persistent
// store so it survives a restart, and exposes read-only traffic
// accounting backed entirely by the store.
type API struct {
	cfg       Config
	registry  *mirror.Registry
	store     store.Store
	prober    Prober
	encryptor Encryptor
	scraper   MirrorSource
	logger    *slog.Logger
}

// NewAPI constructs an API. encryptor and scraper may be nil, in which
// case PlaintextEncryptor and NoopMirrorSource are used.
func NewAPI(cfg Config, reg *mirror.Registry, st store.Store, p Prober, encryptor Encryptor, scraper MirrorSource) *API {
	if cfg.BasePath == "" {
		cfg.BasePath = "/api"
	}
	if cfg.DefaultHistoryLimit <= 0 {
		cfg.DefaultHistoryLimit = 100
	}
	if cfg.MaxHistoryLimit <= 0 {
		cfg.MaxHistoryLimit = 10000
	}
	if encryptor == nil {
		encryptor = PlaintextEncryptor{}
	}
	if scraper == nil {
		scraper = NoopMirrorSource{}
	}
	return &API{
		cfg:       cfg,
		registry:  reg,
		store:     st,
		prober:    p,
		encryptor: encryptor,
		scraper:   scraper,
		logger:    slog.Default().With("component", "admin"),
	}
}

// Routes builds the Admin API's http.Handler, mounted under cfg.BasePath.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	base := a.cfg.BasePath

	mux.HandleFunc("GET "+base+"/mirrors", a.handleListMirrors)
	mux.HandleFunc("POST "+base+"/mirrors", a.handleCreateMirror)
	mux.HandleFunc("PATCH "+base+"/mirrors/{id}", a.handlePatchMirror)
	mux.HandleFunc("DELETE "+base+"/mirrors/{id}", a.handleDeleteMirror)
	mux.HandleFunc("POST "+base+"/mirrors/{id}/toggle", a.handleToggleMirror)
	mux.HandleFunc("POST "+base+"/probe", a.handleProbe)
	mux.HandleFunc("POST "+base+"/scrape", a.handleScrape)
	mux.HandleFunc("GET "+base+"/stats", a.handleStats)
	mux.HandleFunc("GET "+base+"/history", a.handleHistory)
	mux.HandleFunc("GET "+base+"/search", a.handleSearch)

	return mux
}
