package certificates

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"io/fs"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

const pkcs12Password = ""

// CertificateAuthorityProvider returns a root certificate authority ready to sign.
type CertificateAuthorityProvider interface {
	EnsureCertificateAuthority(ctx context.Context) (*CertificateAuthority, error)
}

// CertificateConfiguration defines how leaf certificates are generated and persisted.
type CertificateConfiguration struct {
	CertificateValidityDuration time.Duration
	LeafRSAKeyBitSize           int
	CertificateFilePermissions  fs.FileMode
	PrivateKeyFilePermissions   fs.FileMode
	OutputDirectory             string
	SubjectOrganizationalUnit   string
}

// CertificateRequest describes the desired certificate attributes and output paths.
// Empty paths fall back to names derived from Hosts.
type CertificateRequest struct {
	Hosts                []string
	CertificatePath      string
	PrivateKeyPath       string
	PKCS12Path           string
	ClientAuthentication bool
	KeyAlgorithm         KeyAlgorithm
	ExportPKCS12         bool
}

// IssuedCertificate contains the leaf certificate artifacts and where they were written.
type IssuedCertificate struct {
	Paths                   OutputPaths
	Certificate             *x509.Certificate
	CertificatePEM          []byte
	PrivateKeyPEM           []byte
	SubjectAlternativeNames []SubjectAlternativeName
}

// CertificateIssuer signs leaf certificates using a root certificate authority.
type CertificateIssuer struct {
	fileSystem       FileSystem
	clock            Clock
	randomnessSource io.Reader
	serialNumbers    *SerialNumberGenerator
	authorities      CertificateAuthorityProvider
	configuration    CertificateConfiguration
}

// NewCertificateIssuer constructs a CertificateIssuer.
func NewCertificateIssuer(fileSystem FileSystem, clock Clock, randomnessSource io.Reader, serialNumbers *SerialNumberGenerator, authorities CertificateAuthorityProvider, configuration CertificateConfiguration) CertificateIssuer {
	return CertificateIssuer{
		fileSystem:       fileSystem,
		clock:            clock,
		randomnessSource: randomnessSource,
		serialNumbers:    serialNumbers,
		authorities:      authorities,
		configuration:    configuration,
	}
}

// CalculateExpiration returns the notAfter of a leaf issued at issuedAt.
func (issuer CertificateIssuer) CalculateExpiration(issuedAt time.Time) time.Time {
	validity := issuer.configuration.CertificateValidityDuration
	if validity <= 0 {
		validity = DefaultLeafCertificateValidityDuration
	}
	return issuedAt.Add(validity)
}

// IssueCertificate validates the requested hosts, signs a new leaf certificate, and writes it to disk.
func (issuer CertificateIssuer) IssueCertificate(ctx context.Context, request CertificateRequest) (IssuedCertificate, error) {
	subjectAlternativeNames, namesErr := BuildSubjectAlternativeNames(request.Hosts)
	if namesErr != nil {
		return IssuedCertificate{}, namesErr
	}

	select {
	case <-ctx.Done():
		return IssuedCertificate{}, fmt.Errorf("issue certificate: %w", ctx.Err())
	default:
	}

	authority, authorityErr := issuer.authorities.EnsureCertificateAuthority(ctx)
	if authorityErr != nil {
		return IssuedCertificate{}, fmt.Errorf("ensure certificate authority: %w", authorityErr)
	}

	leafKeyBits := issuer.configuration.LeafRSAKeyBitSize
	if leafKeyBits <= 0 {
		leafKeyBits = DefaultLeafRSAKeyBitSize
	}
	privateKey, privateKeyErr := GeneratePrivateKey(issuer.randomnessSource, request.KeyAlgorithm, leafKeyBits)
	if privateKeyErr != nil {
		return IssuedCertificate{}, newCertificateError("generate leaf private key", privateKeyErr)
	}

	template, templateErr := issuer.leafTemplate(subjectAlternativeNames[0].Value, privateKey.Public(), request.ClientAuthentication)
	if templateErr != nil {
		return IssuedCertificate{}, templateErr
	}
	applySubjectAlternativeNames(template, subjectAlternativeNames)

	certificateDer, signErr := authority.Sign(template, privateKey.Public())
	if signErr != nil {
		return IssuedCertificate{}, signErr
	}
	certificate, parseErr := x509.ParseCertificate(certificateDer)
	if parseErr != nil {
		return IssuedCertificate{}, newCertificateError("parse leaf certificate", parseErr)
	}

	certificatePem := encodeCertificatePEM(certificateDer)
	privateKeyPem, encodeErr := encodePrivateKeyPEM(privateKey)
	if encodeErr != nil {
		return IssuedCertificate{}, newCertificateError("encode leaf private key", encodeErr)
	}

	paths := issuer.resolveOutputPaths(request)
	writtenPaths, writeErr := issuer.writeCertificateAndKey(paths, certificatePem, privateKeyPem)
	if writeErr != nil {
		return IssuedCertificate{}, writeErr
	}

	if request.ExportPKCS12 {
		pkcs12Bytes, pkcs12Err := pkcs12.Legacy.Encode(privateKey, certificate, []*x509.Certificate{authority.Certificate()}, pkcs12Password)
		if pkcs12Err != nil {
			issuer.removeAll(writtenPaths)
			return IssuedCertificate{}, newCertificateError("encode pkcs12", pkcs12Err)
		}
		if err := issuer.fileSystem.WriteFile(paths.PKCS12Path, pkcs12Bytes, issuer.configuration.PrivateKeyFilePermissions); err != nil {
			issuer.removeAll(writtenPaths)
			return IssuedCertificate{}, fmt.Errorf("write pkcs12 file: %w", err)
		}
	} else {
		paths.PKCS12Path = ""
	}

	return IssuedCertificate{
		Paths:                   paths,
		Certificate:             certificate,
		CertificatePEM:          certificatePem,
		PrivateKeyPEM:           privateKeyPem,
		SubjectAlternativeNames: subjectAlternativeNames,
	}, nil
}

func (issuer CertificateIssuer) leafTemplate(commonName string, publicKey crypto.PublicKey, clientAuthentication bool) (*x509.Certificate, error) {
	serialNumber, serialErr := issuer.serialNumbers.Next()
	if serialErr != nil {
		return nil, newCertificateError("generate serial number", serialErr)
	}

	now := issuer.clock.Now()
	keyUsage := x509.KeyUsageDigitalSignature
	if isRSAPublicKey(publicKey) {
		keyUsage |= x509.KeyUsageKeyEncipherment
	}
	extendedKeyUsage := []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	if clientAuthentication {
		extendedKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	return &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:         commonName,
			Organization:       []string{DefaultLeafCertificateOrganization},
			OrganizationalUnit: []string{issuer.configuration.SubjectOrganizationalUnit},
		},
		NotBefore:             now,
		NotAfter:              issuer.CalculateExpiration(now),
		KeyUsage:              keyUsage,
		ExtKeyUsage:           extendedKeyUsage,
		BasicConstraintsValid: true,
	}, nil
}

func (issuer CertificateIssuer) resolveOutputPaths(request CertificateRequest) OutputPaths {
	paths := DefaultOutputPaths(issuer.configuration.OutputDirectory, request.Hosts)
	if request.CertificatePath != "" {
		paths.CertificatePath = request.CertificatePath
	}
	if request.PrivateKeyPath != "" {
		paths.PrivateKeyPath = request.PrivateKeyPath
	}
	if request.PKCS12Path != "" {
		paths.PKCS12Path = request.PKCS12Path
	}
	return paths
}

// writeCertificateAndKey writes both files or neither. When both paths are equal a single
// file holds the certificate followed by the key.
func (issuer CertificateIssuer) writeCertificateAndKey(paths OutputPaths, certificatePem []byte, privateKeyPem []byte) ([]string, error) {
	if paths.CertificatePath == paths.PrivateKeyPath {
		combined := bytes.Join([][]byte{certificatePem, privateKeyPem}, nil)
		if err := issuer.fileSystem.WriteFile(paths.CertificatePath, combined, issuer.configuration.PrivateKeyFilePermissions); err != nil {
			return nil, fmt.Errorf("write certificate and key file: %w", err)
		}
		return []string{paths.CertificatePath}, nil
	}

	if err := issuer.fileSystem.WriteFile(paths.CertificatePath, certificatePem, issuer.configuration.CertificateFilePermissions); err != nil {
		return nil, fmt.Errorf("write certificate file: %w", err)
	}
	if err := issuer.fileSystem.WriteFile(paths.PrivateKeyPath, privateKeyPem, issuer.configuration.PrivateKeyFilePermissions); err != nil {
		issuer.removeAll([]string{paths.CertificatePath})
		return nil, fmt.Errorf("write private key file: %w", err)
	}
	return []string{paths.CertificatePath, paths.PrivateKeyPath}, nil
}

func (issuer CertificateIssuer) removeAll(paths []string) {
	for _, path := range paths {
		_ = issuer.fileSystem.Remove(path)
	}
}
