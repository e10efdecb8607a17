package certificates

import (
	"crypto/x509"
	"fmt"
	"math/big"
	"time"
)

const expirationDateLayout = "2 January 2006"

// CertificateReport summarizes a certificate for display.
type CertificateReport struct {
	Subject                 string    `json:"subject" yaml:"subject"`
	Issuer                  string    `json:"issuer" yaml:"issuer"`
	SerialNumber            string    `json:"serial_number" yaml:"serial_number"`
	SubjectAlternativeNames []string  `json:"subject_alternative_names" yaml:"subject_alternative_names"`
	NotBefore               time.Time `json:"not_before" yaml:"not_before"`
	NotAfter                time.Time `json:"not_after" yaml:"not_after"`
	Expires                 string    `json:"expires" yaml:"expires"`
	ExpiringSoon            bool      `json:"expiring_soon" yaml:"expiring_soon"`
	SelfSigned              bool      `json:"self_signed" yaml:"self_signed"`
	ChainValid              bool      `json:"chain_valid" yaml:"chain_valid"`
	ChainError              string    `json:"chain_error,omitempty" yaml:"chain_error,omitempty"`
}

// IsExpiringSoon reports whether notAfter falls within DefaultExpiringSoonWindow of now.
func IsExpiringSoon(notAfter time.Time, now time.Time) bool {
	return notAfter.Sub(now) <= DefaultExpiringSoonWindow
}

// FormatExpiration renders an expiration date for humans.
func FormatExpiration(notAfter time.Time) string {
	return notAfter.Format(expirationDateLayout)
}

// ValidateChain verifies that leaf chains up to authority, ignoring extended key usage.
func ValidateChain(leaf *x509.Certificate, authority *x509.Certificate) error {
	roots := x509.NewCertPool()
	roots.AddCert(authority)
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: leaf.NotBefore.Add(time.Second),
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return newCertificateError("verify chain", err)
	}
	return nil
}

// InspectCertificate parses certificatePEM and reports its identity, validity, and whether
// it chains to authority. authority may be nil when no root is available.
func InspectCertificate(certificatePEM []byte, authority *x509.Certificate, now time.Time) (CertificateReport, error) {
	certificate, err := parseCertificateFromPEM(certificatePEM)
	if err != nil {
		return CertificateReport{}, newCertificateError("parse certificate", err)
	}

	report := CertificateReport{
		Subject:                 certificate.Subject.String(),
		Issuer:                  certificate.Issuer.String(),
		SerialNumber:            formatSerialNumber(certificate.SerialNumber),
		SubjectAlternativeNames: certificateSubjectAlternativeNames(certificate),
		NotBefore:               certificate.NotBefore,
		NotAfter:                certificate.NotAfter,
		Expires:                 FormatExpiration(certificate.NotAfter),
		ExpiringSoon:            IsExpiringSoon(certificate.NotAfter, now),
		SelfSigned:              certificate.CheckSignatureFrom(certificate) == nil,
	}
	if authority == nil {
		report.ChainError = "no certificate authority available"
		return report, nil
	}
	if chainErr := ValidateChain(certificate, authority); chainErr != nil {
		report.ChainError = chainErr.Error()
		return report, nil
	}
	report.ChainValid = true
	return report, nil
}

func certificateSubjectAlternativeNames(certificate *x509.Certificate) []string {
	names := make([]string, 0, len(certificate.DNSNames)+len(certificate.IPAddresses)+len(certificate.EmailAddresses)+len(certificate.URIs))
	for _, dnsName := range certificate.DNSNames {
		names = append(names, "DNS:"+DomainToUnicode(dnsName))
	}
	for _, address := range certificate.IPAddresses {
		names = append(names, "IP:"+address.String())
	}
	for _, email := range certificate.EmailAddresses {
		names = append(names, "email:"+email)
	}
	for _, uri := range certificate.URIs {
		names = append(names, "URI:"+uri.String())
	}
	return names
}

func formatSerialNumber(serialNumber *big.Int) string {
	return fmt.Sprintf("%X", serialNumber)
}
