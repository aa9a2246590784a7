package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type certSpec struct {
	commonName string
	dnsNames   []string
	notBefore  time.Time
	notAfter   time.Time
	parent     *issuedCert
	isCA       bool
}

type issuedCert struct {
	template *x509.Certificate
	key      *ecdsa.PrivateKey
	der      []byte
	certPEM  []byte
	keyPEM   []byte
}

func issueCert(t *testing.T, spec certSpec) *issuedCert {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	serial, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: spec.commonName},
		DNSNames:              spec.dnsNames,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             spec.notBefore,
		NotAfter:              spec.notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  spec.isCA,
	}

	parentTemplate, parentKey := template, key
	if spec.parent != nil {
		parentTemplate, parentKey = spec.parent.template, spec.parent.key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parentTemplate, &key.PublicKey, parentKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	return &issuedCert{
		template: template,
		key:      key,
		der:      der,
		certPEM:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		keyPEM:   pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}
}

func writeCertFiles(t *testing.T, dir string, c *issuedCert) (certFile, keyFile string) {
	t.Helper()
	certFile = filepath.Join(dir, "tls.crt")
	keyFile = filepath.Join(dir, "tls.key")
	if err := os.WriteFile(certFile, c.certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, c.keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func serverCert(t *testing.T) *issuedCert {
	t.Helper()
	return issueCert(t, certSpec{
		commonName: "relay.local",
		dnsNames:   []string{"relay.local"},
		notBefore:  time.Now().Add(-time.Hour),
		notAfter:   time.Now().Add(365 * 24 * time.Hour),
	})
}

func TestToTLSConfigDisabled(t *testing.T) {
	conf, err := (&Config{Enabled: false}).ToTLSConfig()
	if err != nil || conf != nil {
		t.Errorf("disabled config = %v, %v, want nil, nil", conf, err)
	}
}

func TestToTLSConfigRequiresFiles(t *testing.T) {
	if _, err := (&Config{Enabled: true}).ToTLSConfig(); err == nil {
		t.Error("expected error without cert_file and key_file")
	}
	if _, err := (&Config{Enabled: true, CertFile: "/absent.crt", KeyFile: "/absent.key"}).ToTLSConfig(); err == nil {
		t.Error("expected error for missing files")
	}
}

func TestToTLSConfigDefaults(t *testing.T) {
	certFile, keyFile := writeCertFiles(t, t.TempDir(), serverCert(t))

	conf, err := (&Config{Enabled: true, CertFile: certFile, KeyFile: keyFile}).ToTLSConfig()
	if err != nil {
		t.Fatalf("ToTLSConfig: %v", err)
	}
	if conf.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", conf.MinVersion)
	}
	if conf.CipherSuites != nil {
		t.Errorf("CipherSuites = %v, want nil for Go defaults", conf.CipherSuites)
	}
	if len(conf.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(conf.Certificates))
	}
}

func TestToTLSConfigMinVersionAndSuites(t *testing.T) {
	certFile, keyFile := writeCertFiles(t, t.TempDir(), serverCert(t))

	conf, err := (&Config{
		Enabled:    true,
		CertFile:   certFile,
		KeyFile:    keyFile,
		MinVersion: "1.2",
		CipherSuites: []string{
			"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
			"NOT_A_REAL_SUITE",
		},
	}).ToTLSConfig()
	if err != nil {
		t.Fatalf("ToTLSConfig: %v", err)
	}
	if conf.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", conf.MinVersion)
	}
	if len(conf.CipherSuites) != 1 || conf.CipherSuites[0] != tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384 {
		t.Errorf("CipherSuites = %v, want only the recognized suite", conf.CipherSuites)
	}
}

func TestToTLSConfigRejectsExpiredCertificate(t *testing.T) {
	expired := issueCert(t, certSpec{
		commonName: "relay.local",
		notBefore:  time.Now().Add(-48 * time.Hour),
		notAfter:   time.Now().Add(-24 * time.Hour),
	})
	certFile, keyFile := writeCertFiles(t, t.TempDir(), expired)

	if _, err := (&Config{Enabled: true, CertFile: certFile, KeyFile: keyFile}).ToTLSConfig(); err == nil {
		t.Error("expected error for expired certificate")
	}
}

func TestParseReloadInterval(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", DefaultReloadInterval},
		{"garbage", DefaultReloadInterval},
		{"-1m", DefaultReloadInterval},
		{"30s", 30 * time.Second},
		{"1h", time.Hour},
	}
	for _, tc := range cases {
		if got := (&Config{ReloadInterval: tc.in}).ParseReloadInterval(); got != tc.want {
			t.Errorf("ParseReloadInterval(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCheckCertificateExpiration(t *testing.T) {
	longLived := serverCert(t)
	leaf, _ := x509.ParseCertificate(longLived.der)
	days, warning := CheckCertificateExpiration(leaf)
	if warning != "" {
		t.Errorf("unexpected warning for year-long cert: %q", warning)
	}
	if days < 360 {
		t.Errorf("days = %d, want ~365", days)
	}

	shortLived := issueCert(t, certSpec{
		commonName: "relay.local",
		notBefore:  time.Now().Add(-time.Hour),
		notAfter:   time.Now().Add(5 * 24 * time.Hour),
	})
	leaf, _ = x509.ParseCertificate(shortLived.der)
	if _, warning := CheckCertificateExpiration(leaf); warning == "" {
		t.Error("expected warning for certificate expiring in 5 days")
	}
}

func TestValidateCertificateChain(t *testing.T) {
	ca := issueCert(t, certSpec{
		commonName: "relay test CA",
		notBefore:  time.Now().Add(-time.Hour),
		notAfter:   time.Now().Add(365 * 24 * time.Hour),
		isCA:       true,
	})
	signed := issueCert(t, certSpec{
		commonName: "relay.local",
		dnsNames:   []string{"relay.local"},
		notBefore:  time.Now().Add(-time.Hour),
		notAfter:   time.Now().Add(30 * 24 * time.Hour),
		parent:     ca,
	})

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(ca.certPEM) {
		t.Fatal("append CA cert")
	}

	leaf, err := x509.ParseCertificate(signed.der)
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateCertificateChain(leaf, caPool); err != nil {
		t.Errorf("chain validation: %v", err)
	}

	stranger, _ := x509.ParseCertificate(serverCert(t).der)
	if err := ValidateCertificateChain(stranger, caPool); err == nil {
		t.Error("expected failure for certificate outside the CA pool")
	}
}

func TestExtractCertificateInfo(t *testing.T) {
	leaf, err := x509.ParseCertificate(serverCert(t).der)
	if err != nil {
		t.Fatal(err)
	}

	info := ExtractCertificateInfo(leaf)
	if info.Subject == "" || info.Issuer == "" {
		t.Errorf("subject/issuer empty: %+v", info)
	}
	if len(info.DNSNames) != 1 || info.DNSNames[0] != "relay.local" {
		t.Errorf("DNSNames = %v", info.DNSNames)
	}
	if len(info.IPAddresses) != 1 || info.IPAddresses[0] != "127.0.0.1" {
		t.Errorf("IPAddresses = %v", info.IPAddresses)
	}
}

func TestReloaderServesAndRotates(t *testing.T) {
	dir := t.TempDir()
	first := serverCert(t)
	certFile, keyFile := writeCertFiles(t, dir, first)

	r := NewCertificateReloader(certFile, keyFile, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	served, err := r.GetCertificateFunc()(nil)
	if err != nil || served == nil {
		t.Fatalf("GetCertificateFunc: %v, %v", served, err)
	}
	firstLeaf, _ := x509.ParseCertificate(served.Certificate[0])

	second := issueCert(t, certSpec{
		commonName: "relay.rotated",
		dnsNames:   []string{"relay.rotated"},
		notBefore:  time.Now().Add(-time.Hour),
		notAfter:   time.Now().Add(365 * 24 * time.Hour),
	})
	writeCertFiles(t, dir, second)
	// Push mtimes forward in case the filesystem's granularity hides
	// the rewrite from the watcher.
	future := time.Now().Add(time.Second)
	_ = os.Chtimes(certFile, future, future)
	_ = os.Chtimes(keyFile, future, future)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cert := r.GetCertificate()
		leaf, _ := x509.ParseCertificate(cert.Certificate[0])
		if leaf.Subject.CommonName != firstLeaf.Subject.CommonName {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("rotated certificate never picked up")
}

func TestReloaderStartFailsWithoutFiles(t *testing.T) {
	r := NewCertificateReloader("/absent.crt", "/absent.key", time.Minute)
	if err := r.Start(context.Background()); err == nil {
		t.Error("expected error for missing certificate files")
	}
}
