package app

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tyemirov/devcert/internal/certificates"
	"github.com/tyemirov/devcert/internal/certificates/truststore"
)

type certificateServices struct {
	authorities certificates.CertificateAuthorityManager
	issuer      certificates.CertificateIssuer
}

func resolveCARoot(configurationManager *viper.Viper) (string, error) {
	directoryValue := strings.TrimSpace(configurationManager.GetString(configKeyCARoot))
	if directoryValue == "" {
		return "", errors.New("certificate authority directory is not configured")
	}
	absoluteDirectory, err := filepath.Abs(directoryValue)
	if err != nil {
		return "", fmt.Errorf("resolve certificate authority directory: %w", err)
	}
	return absoluteDirectory, nil
}

// subjectOrganizationalUnit identifies who created a certificate as user@host.
func subjectOrganizationalUnit() string {
	userName := "unknown"
	if currentUser, err := user.Current(); err == nil && currentUser.Username != "" {
		userName = currentUser.Username
	}
	hostName, err := os.Hostname()
	if err != nil || hostName == "" {
		hostName = "localhost"
	}
	return userName + "@" + hostName
}

func buildCertificateAuthorityConfiguration(caRootDirectory string, organizationalUnit string) certificates.CertificateAuthorityConfiguration {
	return certificates.CertificateAuthorityConfiguration{
		DirectoryPath:               caRootDirectory,
		CertificateFileName:         certificates.DefaultRootCertificateFileName,
		PrivateKeyFileName:          certificates.DefaultRootPrivateKeyFileName,
		LockFileName:                certificates.DefaultRootLockFileName,
		DirectoryPermissions:        0o700,
		CertificateFilePermissions:  0o644,
		PrivateKeyFilePermissions:   0o600,
		RSAKeyBitSize:               certificates.MinimumRootRSAKeyBitSize,
		CertificateValidityDuration: certificates.DefaultCertificateAuthorityValidityDuration,
		SubjectOrganizationalUnit:   organizationalUnit,
		SubjectOrganization:         certificates.DefaultCertificateAuthorityOrganization,
	}
}

func buildCertificateConfiguration(organizationalUnit string) certificates.CertificateConfiguration {
	return certificates.CertificateConfiguration{
		CertificateValidityDuration: certificates.DefaultLeafCertificateValidityDuration,
		LeafRSAKeyBitSize:           certificates.DefaultLeafRSAKeyBitSize,
		CertificateFilePermissions:  0o644,
		PrivateKeyFilePermissions:   0o600,
		SubjectOrganizationalUnit:   organizationalUnit,
	}
}

func (resources *applicationResources) certificateServices() (certificateServices, error) {
	caRootDirectory, err := resolveCARoot(resources.configurationManager)
	if err != nil {
		return certificateServices{}, err
	}
	organizationalUnit := subjectOrganizationalUnit()
	fileSystem := certificates.NewOperatingSystemFileSystem()
	clock := certificates.NewSystemClock()
	serialNumbers := certificates.NewSerialNumberGenerator(rand.Reader)
	authorities := certificates.NewCertificateAuthorityManager(fileSystem, clock, rand.Reader, serialNumbers, buildCertificateAuthorityConfiguration(caRootDirectory, organizationalUnit))
	issuer := certificates.NewCertificateIssuer(fileSystem, clock, rand.Reader, serialNumbers, authorities, buildCertificateConfiguration(organizationalUnit))
	return certificateServices{authorities: authorities, issuer: issuer}, nil
}

func (resources *applicationResources) trustStoreConfiguration(authority *certificates.CertificateAuthority) truststore.Configuration {
	configurationManager := resources.configurationManager
	return truststore.Configuration{
		CertificatePath:           authority.CertificatePath(),
		UniqueName:                authority.UniqueName(),
		FirefoxProfileDirectories: configurationManager.GetStringSlice(configKeyFirefoxProfileDirectories),
		JavaHome:                  strings.TrimSpace(configurationManager.GetString(configKeyJavaHome)),
	}
}

func (resources *applicationResources) trustStoreDispatcher(authority *certificates.CertificateAuthority) (*truststore.Dispatcher, error) {
	targets, err := truststore.ParseTargets(resources.configurationManager.GetString(configKeyTrustStoreTargets))
	if err != nil {
		return nil, err
	}
	drivers, err := resources.buildDrivers(resources.trustStoreConfiguration(authority))
	if err != nil {
		return nil, fmt.Errorf("build trust store drivers: %w", err)
	}
	return truststore.NewDispatcher(drivers, targets), nil
}
