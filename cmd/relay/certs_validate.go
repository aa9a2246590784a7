package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	securitytls "relaydock/relay/pkg/security/tls"

	"github.com/spf13/cobra"
)

var certsValidateFlags struct {
	certFile string
	keyFile  string
	caFile   string
}

var certsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a certificate and key",
	Long: `Validate a certificate before pointing the listener at it.

Checks that the certificate parses and has not expired, that the key
matches when --key is given, and that the chain verifies against the
CA when --ca is given. A warning is printed when expiry is less than
thirty days out.`,
	RunE: runCertsValidate,
}

func init() {
	certsCmd.AddCommand(certsValidateCmd)

	certsValidateCmd.Flags().StringVar(&certsValidateFlags.certFile, "cert", "", "certificate file (required)")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.keyFile, "key", "", "private key file")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.caFile, "ca", "", "CA certificate file")

	_ = certsValidateCmd.MarkFlagRequired("cert")
}

func runCertsValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cert, err := readCertificate(certsValidateFlags.certFile)
	if err != nil {
		return err
	}

	if certsValidateFlags.keyFile != "" {
		if _, err := tls.LoadX509KeyPair(certsValidateFlags.certFile, certsValidateFlags.keyFile); err != nil {
			return fmt.Errorf("certificate and key do not match: %w", err)
		}
		fmt.Fprintln(out, "ok: certificate and key match")
	}

	if certsValidateFlags.caFile != "" {
		caPEM, err := os.ReadFile(certsValidateFlags.caFile)
		if err != nil {
			return fmt.Errorf("read CA certificate: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caPEM) {
			return fmt.Errorf("no CA certificates in %s", certsValidateFlags.caFile)
		}
		if err := securitytls.ValidateCertificateChain(cert, caPool); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok: chain verifies against CA")
	}

	if time.Now().After(cert.NotAfter) {
		return fmt.Errorf("certificate expired %s", cert.NotAfter.Format("2006-01-02"))
	}
	fmt.Fprintf(out, "ok: valid until %s\n", cert.NotAfter.Format("2006-01-02"))

	if daysLeft, warning := securitytls.CheckCertificateExpiration(cert); warning != "" {
		fmt.Fprintf(out, "warning: expires in %d days\n", daysLeft)
	}

	return nil
}
