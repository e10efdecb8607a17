package truststore

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tyemirov/devcert/internal/certificates"
)

const (
	defaultMacOSKeychainPath           = "/Library/Keychains/System.keychain"
	defaultWindowsCertificateStoreName = "Root"
)

// LinuxTrustAnchor describes where one distribution family keeps extra CA anchors and
// how it rebuilds its bundle.
type LinuxTrustAnchor struct {
	Directory      string
	FileExtension  string
	RefreshCommand []string
}

// DefaultLinuxTrustAnchors lists supported distribution families in probe order.
func DefaultLinuxTrustAnchors() []LinuxTrustAnchor {
	return []LinuxTrustAnchor{
		{Directory: "/etc/pki/ca-trust/source/anchors", FileExtension: ".pem", RefreshCommand: []string{"update-ca-trust", "extract"}},
		{Directory: "/usr/local/share/ca-certificates", FileExtension: ".crt", RefreshCommand: []string{"update-ca-certificates"}},
		{Directory: "/etc/ca-certificates/trust-source/anchors", FileExtension: ".crt", RefreshCommand: []string{"trust", "extract-compat"}},
		{Directory: "/usr/share/pki/trust/anchors", FileExtension: ".pem", RefreshCommand: []string{"update-ca-certificates"}},
	}
}

type systemDriverFactory func(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Driver, error)

var supportedFactories = map[string]systemDriverFactory{
	"darwin":  newMacOSDriver,
	"linux":   newLinuxDriver,
	"windows": newWindowsDriver,
}

// NewSystemDriver constructs the operating system trust store driver for the running platform.
// Platforms without one get a driver that is never available.
func NewSystemDriver(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Driver, error) {
	return newSystemDriverFor(runtime.GOOS, commandRunner, fileSystem, configuration)
}

func newSystemDriverFor(operatingSystem string, commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Driver, error) {
	if err := requireCertificateIdentity(configuration); err != nil {
		return nil, err
	}
	factory, found := supportedFactories[operatingSystem]
	if !found {
		return unsupportedDriver{operatingSystem: operatingSystem}, nil
	}
	return factory(commandRunner, fileSystem, configuration)
}

type unsupportedDriver struct {
	operatingSystem string
}

func (driver unsupportedDriver) Target() Target {
	return TargetSystem
}

func (driver unsupportedDriver) Available(ctx context.Context) bool {
	return false
}

func (driver unsupportedDriver) Check(ctx context.Context) (bool, error) {
	return false, driver.unsupported()
}

func (driver unsupportedDriver) Install(ctx context.Context) error {
	return driver.unsupported()
}

func (driver unsupportedDriver) Uninstall(ctx context.Context) error {
	return driver.unsupported()
}

func (driver unsupportedDriver) unsupported() error {
	return fmt.Errorf("%w: unsupported operating system %s", ErrTargetUnavailable, driver.operatingSystem)
}

type macOSDriver struct {
	commandRunner certificates.CommandRunner
	configuration Configuration
}

func newMacOSDriver(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Driver, error) {
	if configuration.MacOSKeychainPath == "" {
		configuration.MacOSKeychainPath = defaultMacOSKeychainPath
	}
	return &macOSDriver{
		commandRunner: commandRunner,
		configuration: configuration,
	}, nil
}

func (driver *macOSDriver) Target() Target {
	return TargetSystem
}

func (driver *macOSDriver) Available(ctx context.Context) bool {
	return true
}

func (driver *macOSDriver) Check(ctx context.Context) (bool, error) {
	arguments := []string{"find-certificate", "-a", "-c", driver.configuration.UniqueName, driver.configuration.MacOSKeychainPath}
	output, err := driver.commandRunner.Output(ctx, commandNameSecurity, arguments)
	if err != nil {
		return false, commandAbsence(err)
	}
	return strings.TrimSpace(string(output)) != "", nil
}

func (driver *macOSDriver) Install(ctx context.Context) error {
	arguments := []string{"add-trusted-cert", "-d", "-k", driver.configuration.MacOSKeychainPath, driver.configuration.CertificatePath}
	if err := driver.commandRunner.RunWithPrivileges(ctx, commandNameSecurity, arguments); err != nil {
		return fmt.Errorf("install certificate in macos keychain: %w", err)
	}
	return nil
}

func (driver *macOSDriver) Uninstall(ctx context.Context) error {
	trustArguments := []string{"remove-trusted-cert", "-d", driver.configuration.CertificatePath}
	if err := driver.commandRunner.RunWithPrivileges(ctx, commandNameSecurity, trustArguments); err != nil {
		return fmt.Errorf("remove certificate trust from macos keychain: %w", err)
	}
	deleteArguments := []string{"delete-certificate", "-c", driver.configuration.UniqueName, driver.configuration.MacOSKeychainPath}
	if err := driver.commandRunner.RunWithPrivileges(ctx, commandNameSecurity, deleteArguments); err != nil {
		return fmt.Errorf("remove certificate from macos keychain: %w", err)
	}
	return nil
}

type linuxDriver struct {
	commandRunner certificates.CommandRunner
	fileSystem    certificates.FileSystem
	configuration Configuration
}

func newLinuxDriver(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Driver, error) {
	if len(configuration.LinuxTrustAnchors) == 0 {
		configuration.LinuxTrustAnchors = DefaultLinuxTrustAnchors()
	}
	return &linuxDriver{
		commandRunner: commandRunner,
		fileSystem:    fileSystem,
		configuration: configuration,
	}, nil
}

func (driver *linuxDriver) Target() Target {
	return TargetSystem
}

// detectAnchor returns the first configured anchor whose directory exists.
func (driver *linuxDriver) detectAnchor() (LinuxTrustAnchor, bool) {
	for _, anchor := range driver.configuration.LinuxTrustAnchors {
		exists, err := driver.fileSystem.FileExists(anchor.Directory)
		if err == nil && exists {
			return anchor, true
		}
	}
	return LinuxTrustAnchor{}, false
}

func (driver *linuxDriver) anchorPath(anchor LinuxTrustAnchor) string {
	return filepath.Join(anchor.Directory, driver.configuration.UniqueName+anchor.FileExtension)
}

func (driver *linuxDriver) Available(ctx context.Context) bool {
	_, found := driver.detectAnchor()
	return found
}

func (driver *linuxDriver) Check(ctx context.Context) (bool, error) {
	anchor, found := driver.detectAnchor()
	if !found {
		return false, driver.unavailable()
	}
	exists, err := driver.fileSystem.FileExists(driver.anchorPath(anchor))
	if err != nil {
		return false, fmt.Errorf("check linux trust anchor: %w", err)
	}
	return exists, nil
}

func (driver *linuxDriver) Install(ctx context.Context) error {
	anchor, found := driver.detectAnchor()
	if !found {
		return driver.unavailable()
	}
	copyArguments := []string{driver.configuration.CertificatePath, driver.anchorPath(anchor)}
	if err := driver.commandRunner.RunWithPrivileges(ctx, "cp", copyArguments); err != nil {
		return fmt.Errorf("copy certificate to %s: %w", anchor.Directory, err)
	}
	if err := driver.refresh(ctx, anchor); err != nil {
		return fmt.Errorf("configure linux trust store: %w", err)
	}
	return nil
}

func (driver *linuxDriver) Uninstall(ctx context.Context) error {
	anchor, found := driver.detectAnchor()
	if !found {
		return driver.unavailable()
	}
	if err := driver.commandRunner.RunWithPrivileges(ctx, "rm", []string{"-f", driver.anchorPath(anchor)}); err != nil {
		return fmt.Errorf("remove linux trust anchor: %w", err)
	}
	if err := driver.refresh(ctx, anchor); err != nil {
		return fmt.Errorf("remove linux trust store certificate: %w", err)
	}
	return nil
}

func (driver *linuxDriver) refresh(ctx context.Context, anchor LinuxTrustAnchor) error {
	return driver.commandRunner.RunWithPrivileges(ctx, anchor.RefreshCommand[0], anchor.RefreshCommand[1:])
}

func (driver *linuxDriver) unavailable() error {
	return fmt.Errorf("%w: no supported CA anchor directory found", ErrTargetUnavailable)
}

type windowsDriver struct {
	commandRunner certificates.CommandRunner
	configuration Configuration
}

func newWindowsDriver(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Driver, error) {
	if configuration.WindowsCertificateStoreName == "" {
		configuration.WindowsCertificateStoreName = defaultWindowsCertificateStoreName
	}
	return &windowsDriver{
		commandRunner: commandRunner,
		configuration: configuration,
	}, nil
}

func (driver *windowsDriver) Target() Target {
	return TargetSystem
}

func (driver *windowsDriver) Available(ctx context.Context) bool {
	return true
}

func (driver *windowsDriver) Check(ctx context.Context) (bool, error) {
	arguments := []string{"-user", "-store", driver.configuration.WindowsCertificateStoreName, driver.configuration.UniqueName}
	if _, err := driver.commandRunner.Output(ctx, commandNameCertutil, arguments); err != nil {
		return false, commandAbsence(err)
	}
	return true, nil
}

func (driver *windowsDriver) Install(ctx context.Context) error {
	arguments := []string{"-user", "-addstore", "-f", driver.configuration.WindowsCertificateStoreName, driver.configuration.CertificatePath}
	if err := driver.commandRunner.RunWithPrivileges(ctx, commandNameCertutil, arguments); err != nil {
		return fmt.Errorf("install certificate in windows store: %w", err)
	}
	return nil
}

func (driver *windowsDriver) Uninstall(ctx context.Context) error {
	arguments := []string{"-user", "-delstore", driver.configuration.WindowsCertificateStoreName, driver.configuration.UniqueName}
	if err := driver.commandRunner.RunWithPrivileges(ctx, commandNameCertutil, arguments); err != nil {
		return fmt.Errorf("remove certificate from windows store: %w", err)
	}
	return nil
}

// commandAbsence maps a lookup command that ran and failed to "not present". A missing
// executable or any other failure is returned.
func commandAbsence(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return err
	}
	var commandErr *certificates.CommandFailedError
	if errors.As(err, &commandErr) {
		return nil
	}
	return err
}
