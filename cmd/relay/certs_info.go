package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	securitytls "relaydock/relay/pkg/security/tls"

	"github.com/spf13/cobra"
)

var certsInfoFlags struct {
	format string
}

var certsInfoCmd = &cobra.Command{
	Use:   "info <cert-file>",
	Short: "Print certificate details",
	Long: `Print subject, issuer, validity, and SAN details of a certificate.

Use --format json for machine-readable output.`,
	Args: cobra.ExactArgs(1),
	RunE: runCertsInfo,
}

func init() {
	certsCmd.AddCommand(certsInfoCmd)

	certsInfoCmd.Flags().StringVar(&certsInfoFlags.format, "format", "text", "output format: text, json")
}

func runCertsInfo(cmd *cobra.Command, args []string) error {
	cert, err := readCertificate(args[0])
	if err != nil {
		return err
	}

	info := securitytls.ExtractCertificateInfo(cert)
	daysLeft, expiryWarning := securitytls.CheckCertificateExpiration(cert)
	out := cmd.OutOrStdout()

	if certsInfoFlags.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*securitytls.CertificateInfo
			DaysRemaining int  `json:"days_remaining"`
			Expired       bool `json:"expired"`
		}{info, daysLeft, time.Now().After(cert.NotAfter)})
	}

	fmt.Fprintf(out, "Certificate: %s\n\n", args[0])
	fmt.Fprintf(out, "Subject:      %s\n", info.Subject)
	fmt.Fprintf(out, "Issuer:       %s\n", info.Issuer)
	fmt.Fprintf(out, "Serial:       %s\n", info.SerialNumber)
	fmt.Fprintf(out, "Not Before:   %s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(out, "Not After:    %s\n", info.NotAfter.Format(time.RFC3339))
	switch {
	case time.Now().After(cert.NotAfter):
		fmt.Fprintf(out, "Status:       EXPIRED %s\n", cert.NotAfter.Format("2006-01-02"))
	case expiryWarning != "":
		fmt.Fprintf(out, "Status:       valid, expires in %d days\n", daysLeft)
	default:
		fmt.Fprintf(out, "Status:       valid (%d days remaining)\n", daysLeft)
	}
	if len(info.DNSNames) > 0 {
		fmt.Fprintf(out, "DNS SANs:     %s\n", strings.Join(info.DNSNames, ", "))
	}
	if len(info.IPAddresses) > 0 {
		fmt.Fprintf(out, "IP SANs:      %s\n", strings.Join(info.IPAddresses, ", "))
	}
	fmt.Fprintf(out, "Signature:    %s\n", info.SignatureAlgorithm)
	fmt.Fprintf(out, "Public Key:   %s\n", info.PublicKeyAlgorithm)
	fmt.Fprintf(out, "Is CA:        %v\n", cert.IsCA)

	return nil
}
