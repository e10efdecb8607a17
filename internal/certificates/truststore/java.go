package truststore

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/tyemirov/devcert/internal/certificates"
)

const (
	javaKeystorePassword          = "changeit"
	javaFileNotFoundSignature     = "java.io.FileNotFoundException"
	javaAliasNotFoundSignature    = "does not exist"
	javaEnvironmentExecutableName = "env"
)

var javaKeystoreRelativePaths = []string{
	filepath.Join("lib", "security", "cacerts"),
	filepath.Join("jre", "lib", "security", "cacerts"),
}

type javaDriver struct {
	commandRunner   certificates.CommandRunner
	fileSystem      certificates.FileSystem
	configuration   Configuration
	operatingSystem string
}

// NewJavaDriver constructs the driver for the cacerts keystore of configuration.JavaHome.
func NewJavaDriver(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Driver, error) {
	if err := requireCertificateIdentity(configuration); err != nil {
		return nil, err
	}
	return &javaDriver{
		commandRunner:   commandRunner,
		fileSystem:      fileSystem,
		configuration:   configuration,
		operatingSystem: runtime.GOOS,
	}, nil
}

func (driver *javaDriver) Target() Target {
	return TargetJava
}

func (driver *javaDriver) keytoolPath() string {
	keytoolName := commandNameKeytool
	if driver.operatingSystem == "windows" {
		keytoolName += ".exe"
	}
	return filepath.Join(driver.configuration.JavaHome, "bin", keytoolName)
}

// keystorePath returns the first cacerts file found under the Java home.
func (driver *javaDriver) keystorePath() (string, bool) {
	if driver.configuration.JavaHome == "" {
		return "", false
	}
	for _, relativePath := range javaKeystoreRelativePaths {
		candidate := filepath.Join(driver.configuration.JavaHome, relativePath)
		exists, err := driver.fileSystem.FileExists(candidate)
		if err == nil && exists {
			return candidate, true
		}
	}
	return "", false
}

func (driver *javaDriver) Available(ctx context.Context) bool {
	if driver.configuration.JavaHome == "" {
		return false
	}
	keytoolExists, err := driver.fileSystem.FileExists(driver.keytoolPath())
	if err != nil || !keytoolExists {
		return false
	}
	_, found := driver.keystorePath()
	return found
}

func (driver *javaDriver) Check(ctx context.Context) (bool, error) {
	keystorePath, found := driver.keystorePath()
	if !found {
		return false, driver.unavailable()
	}
	arguments := []string{"-list", "-keystore", keystorePath, "-storepass", javaKeystorePassword, "-alias", driver.configuration.UniqueName}
	if _, err := driver.commandRunner.Output(ctx, driver.keytoolPath(), arguments); err != nil {
		return false, commandAbsence(err)
	}
	return true, nil
}

func (driver *javaDriver) Install(ctx context.Context) error {
	keystorePath, found := driver.keystorePath()
	if !found {
		return driver.unavailable()
	}
	arguments := []string{
		"-importcert", "-noprompt",
		"-keystore", keystorePath,
		"-storepass", javaKeystorePassword,
		"-file", driver.configuration.CertificatePath,
		"-alias", driver.configuration.UniqueName,
	}
	if err := driver.runKeytool(ctx, arguments); err != nil {
		return fmt.Errorf("import certificate into java keystore: %w", err)
	}
	return nil
}

func (driver *javaDriver) Uninstall(ctx context.Context) error {
	keystorePath, found := driver.keystorePath()
	if !found {
		return driver.unavailable()
	}
	arguments := []string{
		"-delete",
		"-alias", driver.configuration.UniqueName,
		"-keystore", keystorePath,
		"-storepass", javaKeystorePassword,
	}
	err := driver.runKeytool(ctx, arguments)
	if err != nil && !certificates.CommandOutputContains(err, javaAliasNotFoundSignature) {
		return fmt.Errorf("remove certificate from java keystore: %w", err)
	}
	return nil
}

// runKeytool retries exactly once through sudo when a Unix keystore is not writable.
func (driver *javaDriver) runKeytool(ctx context.Context, arguments []string) error {
	err := driver.commandRunner.Run(ctx, driver.keytoolPath(), arguments)
	if err == nil {
		return nil
	}
	if driver.operatingSystem == "windows" || !certificates.CommandOutputContains(err, javaFileNotFoundSignature) {
		return err
	}
	elevatedArguments := append([]string{"JAVA_HOME=" + driver.configuration.JavaHome, driver.keytoolPath()}, arguments...)
	return driver.commandRunner.RunWithPrivileges(ctx, javaEnvironmentExecutableName, elevatedArguments)
}

func (driver *javaDriver) unavailable() error {
	return fmt.Errorf("%w: no keystore found under java home %q", ErrTargetUnavailable, driver.configuration.JavaHome)
}
