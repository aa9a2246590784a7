package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var certsGenerateFlags struct {
	hosts  string
	org    string
	days   int
	output string
}

var certsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a self-signed certificate",
	Long: `Generate a self-signed ECDSA P-256 certificate for local testing.

The certificate is written as tls.crt and the key as tls.key (mode
0600) under the output directory. Self-signed certificates are for
development only; production deployments should terminate TLS with
CA-issued material.

Examples:
  relay certs generate --host localhost
  relay certs generate --host "relay.internal,10.0.0.5" --days 90 -o certs/`,
	RunE: runCertsGenerate,
}

func init() {
	certsCmd.AddCommand(certsGenerateCmd)

	certsGenerateCmd.Flags().StringVar(&certsGenerateFlags.hosts, "host", "localhost", "comma-separated DNS names and IPs")
	certsGenerateCmd.Flags().StringVar(&certsGenerateFlags.org, "org", "relay", "certificate organization")
	certsGenerateCmd.Flags().IntVar(&certsGenerateFlags.days, "days", 365, "validity in days")
	certsGenerateCmd.Flags().StringVarP(&certsGenerateFlags.output, "output", "o", "certs", "output directory")
}

func runCertsGenerate(cmd *cobra.Command, args []string) error {
	if certsGenerateFlags.days < 1 {
		return fmt.Errorf("validity must be at least one day, got %d", certsGenerateFlags.days)
	}

	var dnsNames []string
	var ipAddresses []net.IP
	hosts := strings.Split(certsGenerateFlags.hosts, ",")
	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if ip := net.ParseIP(host); ip != nil {
			ipAddresses = append(ipAddresses, ip)
		} else {
			dnsNames = append(dnsNames, host)
		}
	}
	if len(dnsNames) == 0 && len(ipAddresses) == 0 {
		return fmt.Errorf("no usable hosts in %q", certsGenerateFlags.hosts)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.AddDate(0, 0, certsGenerateFlags.days)
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{certsGenerateFlags.org},
			CommonName:   strings.TrimSpace(hosts[0]),
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	if err := os.MkdirAll(certsGenerateFlags.output, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	certPath := filepath.Join(certsGenerateFlags.output, "tls.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}

	keyPath := filepath.Join(certsGenerateFlags.output, "tls.key")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Certificate: %s\n", certPath)
	fmt.Fprintf(out, "Private key: %s\n", keyPath)
	fmt.Fprintf(out, "Subject:     CN=%s, O=%s\n", template.Subject.CommonName, certsGenerateFlags.org)
	if len(dnsNames) > 0 {
		fmt.Fprintf(out, "DNS SANs:    %s\n", strings.Join(dnsNames, ", "))
	}
	if len(ipAddresses) > 0 {
		ips := make([]string, len(ipAddresses))
		for i, ip := range ipAddresses {
			ips[i] = ip.String()
		}
		fmt.Fprintf(out, "IP SANs:     %s\n", strings.Join(ips, ", "))
	}
	fmt.Fprintf(out, "Valid:       %s to %s\n",
		notBefore.Format("2006-01-02"), notAfter.Format("2006-01-02"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Enable in config.yaml:")
	fmt.Fprintln(out, "  security:")
	fmt.Fprintln(out, "    tls:")
	fmt.Fprintln(out, "      enabled: true")
	fmt.Fprintf(out, "      cert_file: %q\n", certPath)
	fmt.Fprintf(out, "      key_file: %q\n", keyPath)

	return nil
}
