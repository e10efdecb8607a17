package app

import (
	"crypto/x509"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/tyemirov/devcert/internal/certificates"
	"github.com/tyemirov/devcert/internal/certificates/truststore"
)

type issuanceReport struct {
	Hosts           []string  `json:"hosts" yaml:"hosts"`
	CertificatePath string    `json:"certificate_path" yaml:"certificate_path"`
	PrivateKeyPath  string    `json:"private_key_path,omitempty" yaml:"private_key_path,omitempty"`
	PKCS12Path      string    `json:"pkcs12_path,omitempty" yaml:"pkcs12_path,omitempty"`
	ClientAuth      bool      `json:"client_auth" yaml:"client_auth"`
	NotAfter        time.Time `json:"not_after" yaml:"not_after"`
	Expires         string    `json:"expires" yaml:"expires"`
}

func newIssuanceReport(issued certificates.IssuedCertificate) issuanceReport {
	hosts := make([]string, 0, len(issued.SubjectAlternativeNames))
	for _, name := range issued.SubjectAlternativeNames {
		hosts = append(hosts, name.Raw)
	}
	return issuanceReport{
		Hosts:           hosts,
		CertificatePath: issued.Paths.CertificatePath,
		PrivateKeyPath:  issued.Paths.PrivateKeyPath,
		PKCS12Path:      issued.Paths.PKCS12Path,
		ClientAuth:      slices.Contains(issued.Certificate.ExtKeyUsage, x509.ExtKeyUsageClientAuth),
		NotAfter:        issued.Certificate.NotAfter,
		Expires:         certificates.FormatExpiration(issued.Certificate.NotAfter),
	}
}

func (report issuanceReport) renderText(writer io.Writer) error {
	var builder strings.Builder
	builder.WriteString("Created a new certificate valid for the following names:\n")
	for _, host := range report.Hosts {
		fmt.Fprintf(&builder, " - %q\n", host)
	}
	if report.ClientAuth {
		builder.WriteString("The certificate is for client authentication.\n")
	}
	switch {
	case report.PKCS12Path != "":
		fmt.Fprintf(&builder, "The PKCS#12 bundle is at %q\n", report.PKCS12Path)
	case report.PrivateKeyPath == "":
		fmt.Fprintf(&builder, "The certificate is at %q\n", report.CertificatePath)
	case report.CertificatePath == report.PrivateKeyPath:
		fmt.Fprintf(&builder, "The certificate and key are at %q\n", report.CertificatePath)
	default:
		fmt.Fprintf(&builder, "The certificate is at %q and the key at %q\n", report.CertificatePath, report.PrivateKeyPath)
	}
	fmt.Fprintf(&builder, "It will expire on %s\n", report.Expires)
	_, err := io.WriteString(writer, builder.String())
	return err
}

type trustReport struct {
	CARoot            string `json:"ca_root" yaml:"ca_root"`
	UniqueName        string `json:"unique_name" yaml:"unique_name"`
	truststore.Result `yaml:",inline"`
}

func (report trustReport) renderText(writer io.Writer) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Local CA %s (%s)\n", report.UniqueName, report.CARoot)
	for _, outcome := range report.Outcomes {
		fmt.Fprintf(&builder, " - %-6s %s", outcome.Target, strings.ReplaceAll(string(outcome.Status), "_", " "))
		if outcome.Error != "" {
			fmt.Fprintf(&builder, ": %s", outcome.Error)
		}
		builder.WriteString("\n")
	}
	_, err := io.WriteString(writer, builder.String())
	return err
}

type caRootReport struct {
	CARoot string `json:"ca_root" yaml:"ca_root"`
}

func (report caRootReport) renderText(writer io.Writer) error {
	_, err := fmt.Fprintln(writer, report.CARoot)
	return err
}

type inspectionReport struct {
	Path                           string `json:"path" yaml:"path"`
	certificates.CertificateReport `yaml:",inline"`
}

func (report inspectionReport) renderText(writer io.Writer) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Certificate: %s\n", report.Path)
	fmt.Fprintf(&builder, "  Subject:      %s\n", report.Subject)
	fmt.Fprintf(&builder, "  Issuer:       %s\n", report.Issuer)
	fmt.Fprintf(&builder, "  Serial:       %s\n", report.SerialNumber)
	fmt.Fprintf(&builder, "  Names:        %s\n", strings.Join(report.SubjectAlternativeNames, ", "))
	fmt.Fprintf(&builder, "  Not before:   %s\n", report.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(&builder, "  Expires:      %s\n", report.Expires)
	if report.ExpiringSoon {
		builder.WriteString("  Warning:      certificate expires within 30 days\n")
	}
	if report.ChainValid {
		builder.WriteString("  Chain:        valid for the local CA\n")
	} else {
		fmt.Fprintf(&builder, "  Chain:        invalid (%s)\n", report.ChainError)
	}
	_, err := io.WriteString(writer, builder.String())
	return err
}
