package certificates

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"unicode/utf8"
)

// CertificateSigningRequest points at a PEM encoded CSR to sign and where to write the result.
type CertificateSigningRequest struct {
	CSRPath         string
	CertificatePath string
}

// ParseCertificateRequestPEM decodes the first certificate request PEM block.
func ParseCertificateRequestPEM(requestBytes []byte) (*x509.CertificateRequest, error) {
	if !utf8.Valid(requestBytes) {
		return nil, newCertificateError("parse certificate request", errors.New("content is not valid PEM text"))
	}
	block, _ := pem.Decode(requestBytes)
	if block == nil {
		return nil, newCertificateError("parse certificate request", errors.New("no PEM block found"))
	}
	if block.Type != certificateRequestPemBlockType && block.Type != legacyCertificateRequestPemBlockType {
		return nil, newCertificateError("parse certificate request", fmt.Errorf("unexpected PEM block type %s", block.Type))
	}
	request, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, newCertificateError("parse certificate request", err)
	}
	return request, nil
}

func certificateRequestHosts(request *x509.CertificateRequest) []string {
	hosts := make([]string, 0, len(request.DNSNames)+len(request.IPAddresses)+len(request.EmailAddresses)+len(request.URIs))
	hosts = append(hosts, request.DNSNames...)
	for _, address := range request.IPAddresses {
		hosts = append(hosts, address.String())
	}
	hosts = append(hosts, request.EmailAddresses...)
	for _, uri := range request.URIs {
		hosts = append(hosts, uri.String())
	}
	if len(hosts) == 0 && request.Subject.CommonName != "" {
		hosts = append(hosts, request.Subject.CommonName)
	}
	return hosts
}

// SignCertificateRequest issues a certificate for the public key and names carried by a CSR.
// No private key is produced.
func (issuer CertificateIssuer) SignCertificateRequest(ctx context.Context, signingRequest CertificateSigningRequest) (IssuedCertificate, error) {
	requestBytes, readErr := issuer.fileSystem.ReadFile(signingRequest.CSRPath)
	if readErr != nil {
		return IssuedCertificate{}, fmt.Errorf("read certificate request: %w", readErr)
	}
	request, parseErr := ParseCertificateRequestPEM(requestBytes)
	if parseErr != nil {
		return IssuedCertificate{}, parseErr
	}
	if err := request.CheckSignature(); err != nil {
		return IssuedCertificate{}, newCertificateError("verify certificate request signature", err)
	}

	hosts := certificateRequestHosts(request)
	subjectAlternativeNames, namesErr := BuildSubjectAlternativeNames(hosts)
	if namesErr != nil {
		return IssuedCertificate{}, namesErr
	}

	authority, authorityErr := issuer.authorities.EnsureCertificateAuthority(ctx)
	if authorityErr != nil {
		return IssuedCertificate{}, fmt.Errorf("ensure certificate authority: %w", authorityErr)
	}

	template, templateErr := issuer.leafTemplate(subjectAlternativeNames[0].Value, request.PublicKey, onlyEmailAddresses(subjectAlternativeNames))
	if templateErr != nil {
		return IssuedCertificate{}, templateErr
	}
	template.Subject = request.Subject
	applySubjectAlternativeNames(template, subjectAlternativeNames)

	certificateDer, signErr := authority.Sign(template, request.PublicKey)
	if signErr != nil {
		return IssuedCertificate{}, signErr
	}
	certificate, certificateParseErr := x509.ParseCertificate(certificateDer)
	if certificateParseErr != nil {
		return IssuedCertificate{}, newCertificateError("parse leaf certificate", certificateParseErr)
	}
	certificatePem := encodeCertificatePEM(certificateDer)

	certificatePath := signingRequest.CertificatePath
	if certificatePath == "" {
		certificatePath = DefaultOutputPaths(issuer.configuration.OutputDirectory, hosts).CertificatePath
	}
	if err := issuer.fileSystem.WriteFile(certificatePath, certificatePem, issuer.configuration.CertificateFilePermissions); err != nil {
		return IssuedCertificate{}, fmt.Errorf("write certificate file: %w", err)
	}

	return IssuedCertificate{
		Paths:                   OutputPaths{CertificatePath: certificatePath},
		Certificate:             certificate,
		CertificatePEM:          certificatePem,
		SubjectAlternativeNames: subjectAlternativeNames,
	}, nil
}

func onlyEmailAddresses(names []SubjectAlternativeName) bool {
	for _, name := range names {
		if name.Type != HostTypeEmail {
			return false
		}
	}
	return len(names) > 0
}
