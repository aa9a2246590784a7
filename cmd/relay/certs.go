package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Inspect and manage TLS certificates",
	Long: `Inspect and manage the TLS certificates the relay listener serves.

Subcommands:
  generate - issue a self-signed certificate for local testing
  info     - print certificate details
  validate - check a cert/key pair and optionally its chain`,
}

func init() {
	rootCmd.AddCommand(certsCmd)
}

// readCertificate loads the first PEM block from path and parses it as
// an X.509 certificate.
func readCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}
