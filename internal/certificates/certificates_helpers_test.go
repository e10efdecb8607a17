package certificates

import (
	"crypto/rand"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"
)

type fixedClock struct {
	now time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.now
}

var testIssuanceTime = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestAuthorityConfiguration(directory string) CertificateAuthorityConfiguration {
	return CertificateAuthorityConfiguration{
		DirectoryPath:               directory,
		CertificateFileName:         DefaultRootCertificateFileName,
		PrivateKeyFileName:          DefaultRootPrivateKeyFileName,
		LockFileName:                DefaultRootLockFileName,
		DirectoryPermissions:        0o700,
		CertificateFilePermissions:  0o644,
		PrivateKeyFilePermissions:   0o600,
		RSAKeyBitSize:               MinimumRootRSAKeyBitSize,
		CertificateValidityDuration: DefaultCertificateAuthorityValidityDuration,
		SubjectOrganizationalUnit:   "tester@workstation",
		SubjectOrganization:         DefaultCertificateAuthorityOrganization,
	}
}

func newTestAuthorityManager(testingInstance *testing.T, fileSystem FileSystem) (CertificateAuthorityManager, *SerialNumberGenerator) {
	testingInstance.Helper()
	serialNumbers := NewSerialNumberGenerator(rand.Reader)
	configuration := newTestAuthorityConfiguration(filepath.Join(testingInstance.TempDir(), "ca"))
	return NewCertificateAuthorityManager(fileSystem, fixedClock{now: testIssuanceTime}, rand.Reader, serialNumbers, configuration), serialNumbers
}

func newTestIssuer(testingInstance *testing.T, fileSystem FileSystem) (CertificateIssuer, CertificateAuthorityManager, string) {
	testingInstance.Helper()
	manager, serialNumbers := newTestAuthorityManager(testingInstance, fileSystem)
	outputDirectory := testingInstance.TempDir()
	configuration := CertificateConfiguration{
		CertificateValidityDuration: DefaultLeafCertificateValidityDuration,
		LeafRSAKeyBitSize:           DefaultLeafRSAKeyBitSize,
		CertificateFilePermissions:  0o644,
		PrivateKeyFilePermissions:   0o600,
		OutputDirectory:             outputDirectory,
		SubjectOrganizationalUnit:   "tester@workstation",
	}
	issuer := NewCertificateIssuer(fileSystem, fixedClock{now: testIssuanceTime}, rand.Reader, serialNumbers, manager, configuration)
	return issuer, manager, outputDirectory
}

// failingWriteFileSystem fails writes to one path and delegates everything else.
type failingWriteFileSystem struct {
	OperatingSystemFileSystem
	failingPath string
}

var errInjectedWrite = errors.New("injected write failure")

func (fileSystem failingWriteFileSystem) WriteFile(path string, content []byte, permissions fs.FileMode) error {
	if path == fileSystem.failingPath {
		return errInjectedWrite
	}
	return fileSystem.OperatingSystemFileSystem.WriteFile(path, content, permissions)
}
