package certificates

import (
	"context"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const rootLockRetryDelay = 50 * time.Millisecond

// CertificateAuthorityConfiguration defines storage and lifetime parameters for the root certificate authority.
type CertificateAuthorityConfiguration struct {
	DirectoryPath               string
	CertificateFileName         string
	PrivateKeyFileName          string
	LockFileName                string
	DirectoryPermissions        fs.FileMode
	CertificateFilePermissions  fs.FileMode
	PrivateKeyFilePermissions   fs.FileMode
	RSAKeyBitSize               int
	CertificateValidityDuration time.Duration
	SubjectOrganizationalUnit   string
	SubjectOrganization         string
}

// CertificatePath returns the location of the root certificate.
func (configuration CertificateAuthorityConfiguration) CertificatePath() string {
	return filepath.Join(configuration.DirectoryPath, configuration.CertificateFileName)
}

// PrivateKeyPath returns the location of the root private key.
func (configuration CertificateAuthorityConfiguration) PrivateKeyPath() string {
	return filepath.Join(configuration.DirectoryPath, configuration.PrivateKeyFileName)
}

// CertificateAuthority is a loaded root certificate and its signing key.
type CertificateAuthority struct {
	certificatePath  string
	certificatePEM   []byte
	certificate      *x509.Certificate
	signer           crypto.Signer
	randomnessSource io.Reader
}

// Certificate returns the parsed root certificate.
func (authority *CertificateAuthority) Certificate() *x509.Certificate {
	return authority.certificate
}

// CertificatePEM returns the root certificate as stored on disk.
func (authority *CertificateAuthority) CertificatePEM() []byte {
	return authority.certificatePEM
}

// CertificatePath returns the location of the root certificate file.
func (authority *CertificateAuthority) CertificatePath() string {
	return authority.certificatePath
}

// Signer returns the root private key.
func (authority *CertificateAuthority) Signer() crypto.Signer {
	return authority.signer
}

// UniqueName identifies this root inside external trust stores. It only contains
// letters, digits, and underscores, and never changes for a given root certificate.
func (authority *CertificateAuthority) UniqueName() string {
	return UniqueNameForCertificate(authority.certificate)
}

// Sign issues a certificate for publicKey using template, with this authority as issuer.
func (authority *CertificateAuthority) Sign(template *x509.Certificate, publicKey crypto.PublicKey) ([]byte, error) {
	certificateDer, err := x509.CreateCertificate(authority.randomnessSource, template, authority.certificate, publicKey, authority.signer)
	if err != nil {
		return nil, newCertificateError("sign", err)
	}
	return certificateDer, nil
}

// UniqueNameForCertificate derives the trust store identifier of a root certificate.
func UniqueNameForCertificate(certificate *x509.Certificate) string {
	return uniqueNamePrefix + certificate.SerialNumber.String()
}

// CertificateAuthorityManager provisions and loads root certificate authorities.
type CertificateAuthorityManager struct {
	fileSystem       FileSystem
	clock            Clock
	randomnessSource io.Reader
	serialNumbers    *SerialNumberGenerator
	configuration    CertificateAuthorityConfiguration
}

// NewCertificateAuthorityManager constructs a CertificateAuthorityManager.
func NewCertificateAuthorityManager(fileSystem FileSystem, clock Clock, randomnessSource io.Reader, serialNumbers *SerialNumberGenerator, configuration CertificateAuthorityConfiguration) CertificateAuthorityManager {
	return CertificateAuthorityManager{
		fileSystem:       fileSystem,
		clock:            clock,
		randomnessSource: randomnessSource,
		serialNumbers:    serialNumbers,
		configuration:    configuration,
	}
}

// Configuration returns the configuration the manager was built with.
func (manager CertificateAuthorityManager) Configuration() CertificateAuthorityConfiguration {
	return manager.configuration
}

// EnsureCertificateAuthority loads the root certificate authority, creating it when
// neither of its files exists. A directory holding only one of the two files is
// reported as ErrCARootNotFound or ErrCAKeyMissing and is never overwritten.
func (manager CertificateAuthorityManager) EnsureCertificateAuthority(ctx context.Context) (*CertificateAuthority, error) {
	err := manager.fileSystem.EnsureDirectory(manager.configuration.DirectoryPath, manager.configuration.DirectoryPermissions)
	if err != nil {
		return nil, fmt.Errorf("ensure certificate authority directory: %w", err)
	}

	authority, initialized, loadErr := manager.loadIfInitialized()
	if loadErr != nil {
		return nil, loadErr
	}
	if initialized {
		return authority, nil
	}

	rootLock := flock.New(filepath.Join(manager.configuration.DirectoryPath, manager.configuration.LockFileName))
	locked, lockErr := rootLock.TryLockContext(ctx, rootLockRetryDelay)
	if lockErr != nil {
		return nil, fmt.Errorf("lock certificate authority directory: %w", lockErr)
	}
	if !locked {
		return nil, fmt.Errorf("lock certificate authority directory: %s", manager.configuration.DirectoryPath)
	}
	defer func() {
		_ = rootLock.Unlock()
	}()

	// Another process may have finished creating the root while we waited for the lock.
	authority, initialized, loadErr = manager.loadIfInitialized()
	if loadErr != nil {
		return nil, loadErr
	}
	if initialized {
		return authority, nil
	}
	return manager.generateAndPersist(ctx)
}

// LoadCertificateAuthority loads an existing root certificate authority without creating one.
func (manager CertificateAuthorityManager) LoadCertificateAuthority() (*CertificateAuthority, error) {
	authority, initialized, err := manager.loadIfInitialized()
	if err != nil {
		return nil, err
	}
	if !initialized {
		return nil, fmt.Errorf("%w in %s", ErrCARootNotFound, manager.configuration.DirectoryPath)
	}
	return authority, nil
}

func (manager CertificateAuthorityManager) loadIfInitialized() (*CertificateAuthority, bool, error) {
	rootCertificatePath := manager.configuration.CertificatePath()
	rootPrivateKeyPath := manager.configuration.PrivateKeyPath()

	certificateExists, certificateExistsErr := manager.fileSystem.FileExists(rootCertificatePath)
	if certificateExistsErr != nil {
		return nil, false, fmt.Errorf("check certificate file: %w", certificateExistsErr)
	}
	privateKeyExists, privateKeyExistsErr := manager.fileSystem.FileExists(rootPrivateKeyPath)
	if privateKeyExistsErr != nil {
		return nil, false, fmt.Errorf("check private key file: %w", privateKeyExistsErr)
	}

	switch {
	case !certificateExists && !privateKeyExists:
		return nil, false, nil
	case !certificateExists:
		return nil, false, fmt.Errorf("%w: %s", ErrCARootNotFound, rootCertificatePath)
	case !privateKeyExists:
		return nil, false, fmt.Errorf("%w: %s", ErrCAKeyMissing, rootPrivateKeyPath)
	}

	authority, err := manager.loadExisting(rootCertificatePath, rootPrivateKeyPath)
	if err != nil {
		return nil, false, fmt.Errorf("load certificate authority: %w", err)
	}
	return authority, true, nil
}

func (manager CertificateAuthorityManager) loadExisting(rootCertificatePath string, rootPrivateKeyPath string) (*CertificateAuthority, error) {
	certificateBytes, certificateReadErr := manager.fileSystem.ReadFile(rootCertificatePath)
	if certificateReadErr != nil {
		return nil, fmt.Errorf("read certificate file: %w", certificateReadErr)
	}
	privateKeyBytes, privateKeyReadErr := manager.fileSystem.ReadFile(rootPrivateKeyPath)
	if privateKeyReadErr != nil {
		return nil, fmt.Errorf("read private key file: %w", privateKeyReadErr)
	}

	certificate, parseCertificateErr := parseCertificateFromPEM(certificateBytes)
	if parseCertificateErr != nil {
		return nil, newCertificateError("parse root certificate", parseCertificateErr)
	}
	if !certificate.IsCA {
		return nil, newCertificateError("parse root certificate", fmt.Errorf("%s is not a CA certificate", rootCertificatePath))
	}

	privateKey, parsePrivateKeyErr := parsePrivateKeyFromPEM(privateKeyBytes)
	if parsePrivateKeyErr != nil {
		return nil, newCertificateError("parse root private key", parsePrivateKeyErr)
	}

	return &CertificateAuthority{
		certificatePath:  rootCertificatePath,
		certificatePEM:   certificateBytes,
		certificate:      certificate,
		signer:           privateKey,
		randomnessSource: manager.randomnessSource,
	}, nil
}

func (manager CertificateAuthorityManager) generateAndPersist(ctx context.Context) (*CertificateAuthority, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("generate certificate authority: %w", ctx.Err())
	default:
	}

	privateKey, privateKeyErr := GeneratePrivateKey(manager.randomnessSource, KeyAlgorithmRSA, max(manager.configuration.RSAKeyBitSize, MinimumRootRSAKeyBitSize))
	if privateKeyErr != nil {
		return nil, newCertificateError("generate root private key", privateKeyErr)
	}

	serialNumber, serialErr := manager.serialNumbers.Next()
	if serialErr != nil {
		return nil, newCertificateError("generate root serial number", serialErr)
	}

	validity := manager.configuration.CertificateValidityDuration
	if validity <= 0 {
		validity = DefaultCertificateAuthorityValidityDuration
	}
	now := manager.clock.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:         uniqueNamePrefix + serialNumber.String(),
			OrganizationalUnit: []string{manager.configuration.SubjectOrganizationalUnit},
			Organization:       []string{manager.configuration.SubjectOrganization},
		},
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}

	certificateDer, certificateErr := x509.CreateCertificate(manager.randomnessSource, &template, &template, privateKey.Public(), privateKey)
	if certificateErr != nil {
		return nil, newCertificateError("create root certificate", certificateErr)
	}
	certificate, parseErr := x509.ParseCertificate(certificateDer)
	if parseErr != nil {
		return nil, newCertificateError("parse root certificate", parseErr)
	}

	certificatePem := encodeCertificatePEM(certificateDer)
	privateKeyPem, encodeErr := encodePrivateKeyPEM(privateKey)
	if encodeErr != nil {
		return nil, newCertificateError("encode root private key", encodeErr)
	}

	rootCertificatePath := manager.configuration.CertificatePath()
	rootPrivateKeyPath := manager.configuration.PrivateKeyPath()
	writePrivateKeyErr := manager.fileSystem.WriteFile(rootPrivateKeyPath, privateKeyPem, manager.configuration.PrivateKeyFilePermissions)
	if writePrivateKeyErr != nil {
		return nil, fmt.Errorf("write private key file: %w", writePrivateKeyErr)
	}
	writeCertificateErr := manager.fileSystem.WriteFile(rootCertificatePath, certificatePem, manager.configuration.CertificateFilePermissions)
	if writeCertificateErr != nil {
		_ = manager.fileSystem.Remove(rootPrivateKeyPath)
		return nil, fmt.Errorf("write certificate file: %w", writeCertificateErr)
	}

	return &CertificateAuthority{
		certificatePath:  rootCertificatePath,
		certificatePEM:   certificatePem,
		certificate:      certificate,
		signer:           privateKey,
		randomnessSource: manager.randomnessSource,
	}, nil
}
