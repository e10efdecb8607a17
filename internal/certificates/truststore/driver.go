package truststore

import (
	"context"
	"errors"
	"fmt"

	"github.com/tyemirov/devcert/internal/certificates"
)

const (
	commandNameSecurity = "security"
	commandNameCertutil = "certutil"
	commandNameKeytool  = "keytool"
)

// ErrTargetUnavailable reports a trust store that is not present on this machine.
var ErrTargetUnavailable = errors.New("trust store is not available")

// Driver installs the root certificate into one trust store.
type Driver interface {
	Target() Target
	Available(ctx context.Context) bool
	Check(ctx context.Context) (bool, error)
	Install(ctx context.Context) error
	Uninstall(ctx context.Context) error
}

// Configuration controls driver behavior across platforms.
type Configuration struct {
	CertificatePath             string
	UniqueName                  string
	MacOSKeychainPath           string
	LinuxTrustAnchors           []LinuxTrustAnchor
	WindowsCertificateStoreName string
	FirefoxProfileDirectories   []string
	NSSDatabaseDirectories      []string
	JavaHome                    string
}

// TrustStoreError reports a driver failure for one target.
type TrustStoreError struct {
	Target Target
	Err    error
}

func (err *TrustStoreError) Error() string {
	return fmt.Sprintf("trust store %s: %v", err.Target, err.Err)
}

func (err *TrustStoreError) Unwrap() error {
	return err.Err
}

func requireCertificateIdentity(configuration Configuration) error {
	if configuration.CertificatePath == "" {
		return errors.New("certificate path is required")
	}
	if configuration.UniqueName == "" {
		return errors.New("certificate unique name is required")
	}
	return nil
}

type driverConstructor func(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Driver, error)

// NewDrivers constructs the system, NSS, and Java drivers for the running platform.
func NewDrivers(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) ([]Driver, error) {
	constructors := []driverConstructor{NewSystemDriver, NewNSSDriver, NewJavaDriver}
	drivers := make([]Driver, 0, len(constructors))
	for _, constructor := range constructors {
		driver, err := constructor(commandRunner, fileSystem, configuration)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	return drivers, nil
}
