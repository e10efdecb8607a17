package truststore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tyemirov/devcert/internal/certificates"
)

const (
	firefoxUserPreferenceLine = "user_pref(\"security.enterprise_roots.enabled\", true);"
	firefoxUserPreferenceFile = "user.js"
	nssModernDatabaseFile     = "cert9.db"
	nssLegacyDatabaseFile     = "cert8.db"
	nssTrustAttributes        = "C,,"
)

type nssProfile struct {
	path     string
	database string
	firefox  bool
}

type nssDriver struct {
	commandRunner   certificates.CommandRunner
	fileSystem      certificates.FileSystem
	configuration   Configuration
	operatingSystem string
	lookPath        func(string) (string, error)
}

// NewNSSDriver constructs the driver for NSS databases used by Firefox and Chromium.
// Empty profile directory lists fall back to the platform defaults.
func NewNSSDriver(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Driver, error) {
	if err := requireCertificateIdentity(configuration); err != nil {
		return nil, err
	}
	if len(configuration.FirefoxProfileDirectories) == 0 {
		configuration.FirefoxProfileDirectories = DefaultFirefoxProfileDirectories(runtime.GOOS)
	}
	if len(configuration.NSSDatabaseDirectories) == 0 {
		configuration.NSSDatabaseDirectories = DefaultNSSDatabaseDirectories(runtime.GOOS)
	}
	return &nssDriver{
		commandRunner:   commandRunner,
		fileSystem:      fileSystem,
		configuration:   configuration,
		operatingSystem: runtime.GOOS,
		lookPath:        exec.LookPath,
	}, nil
}

func (driver *nssDriver) Target() Target {
	return TargetNSS
}

// Available requires at least one profile, plus either NSS certutil or a Firefox profile
// that can be pointed at the operating system store instead.
func (driver *nssDriver) Available(ctx context.Context) bool {
	profiles := driver.discoverProfiles()
	if len(profiles) == 0 {
		return false
	}
	return driver.certutilAvailable() || len(firefoxProfiles(profiles)) > 0
}

func (driver *nssDriver) Check(ctx context.Context) (bool, error) {
	profiles := driver.discoverProfiles()
	if len(profiles) == 0 {
		return false, fmt.Errorf("%w: no NSS profiles found", ErrTargetUnavailable)
	}
	if !driver.certutilAvailable() {
		preferenceProfiles := firefoxProfiles(profiles)
		if len(preferenceProfiles) == 0 {
			return false, fmt.Errorf("%w: certutil not found", ErrTargetUnavailable)
		}
		for _, profile := range preferenceProfiles {
			enabled, err := driver.enterpriseRootsEnabled(profile.path)
			if err != nil || !enabled {
				return false, err
			}
		}
		return true, nil
	}
	for _, profile := range profiles {
		arguments := []string{"-V", "-d", profile.database, "-u", "L", "-n", driver.configuration.UniqueName}
		if err := driver.commandRunner.Run(ctx, commandNameCertutil, arguments); err != nil {
			return false, commandAbsence(err)
		}
	}
	return true, nil
}

func (driver *nssDriver) Install(ctx context.Context) error {
	profiles := driver.discoverProfiles()
	if len(profiles) == 0 {
		return fmt.Errorf("%w: no NSS profiles found", ErrTargetUnavailable)
	}
	if !driver.certutilAvailable() {
		return driver.enableEnterpriseRoots(firefoxProfiles(profiles))
	}

	var integrationErrors []error
	for _, profile := range profiles {
		arguments := []string{"-A", "-d", profile.database, "-t", nssTrustAttributes, "-n", driver.configuration.UniqueName, "-i", driver.configuration.CertificatePath}
		if err := driver.commandRunner.Run(ctx, commandNameCertutil, arguments); err != nil {
			integrationErrors = append(integrationErrors, fmt.Errorf("import certificate into NSS profile %s: %w", profile.path, err))
		}
	}
	return errors.Join(integrationErrors...)
}

func (driver *nssDriver) Uninstall(ctx context.Context) error {
	profiles := driver.discoverProfiles()
	if !driver.certutilAvailable() {
		preferenceProfiles := firefoxProfiles(profiles)
		if len(preferenceProfiles) == 0 {
			return fmt.Errorf("%w: certutil not found", ErrTargetUnavailable)
		}
		return driver.disableEnterpriseRoots(preferenceProfiles)
	}
	var removalErrors []error
	for _, profile := range profiles {
		arguments := []string{"-D", "-d", profile.database, "-n", driver.configuration.UniqueName}
		if err := driver.commandRunner.Run(ctx, commandNameCertutil, arguments); err != nil {
			removalErrors = append(removalErrors, fmt.Errorf("remove certificate from NSS profile %s: %w", profile.path, err))
		}
	}
	return errors.Join(removalErrors...)
}

// certutilAvailable reports whether the NSS certutil is on PATH. The Windows certutil
// manages the system store only.
func (driver *nssDriver) certutilAvailable() bool {
	if driver.operatingSystem == "windows" {
		return false
	}
	_, err := driver.lookPath(commandNameCertutil)
	return err == nil
}

func (driver *nssDriver) discoverProfiles() []nssProfile {
	var profiles []nssProfile
	for _, directory := range driver.configuration.FirefoxProfileDirectories {
		entries, readErr := driver.fileSystem.ReadDirectory(directory)
		if readErr != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			profile, found := driver.profileAt(filepath.Join(directory, entry.Name()), true)
			if found {
				profiles = append(profiles, profile)
			}
		}
	}
	for _, directory := range driver.configuration.NSSDatabaseDirectories {
		profile, found := driver.profileAt(directory, false)
		if found {
			profiles = append(profiles, profile)
		}
	}
	return profiles
}

// profileAt prefers the SQLite database and falls back to the legacy Berkeley DB.
func (driver *nssDriver) profileAt(profilePath string, firefox bool) (nssProfile, bool) {
	if driver.fileExists(filepath.Join(profilePath, nssModernDatabaseFile)) {
		return nssProfile{path: profilePath, database: "sql:" + profilePath, firefox: firefox}, true
	}
	if driver.fileExists(filepath.Join(profilePath, nssLegacyDatabaseFile)) {
		return nssProfile{path: profilePath, database: "dbm:" + profilePath, firefox: firefox}, true
	}
	return nssProfile{}, false
}

func (driver *nssDriver) fileExists(path string) bool {
	exists, err := driver.fileSystem.FileExists(path)
	return err == nil && exists
}

func (driver *nssDriver) enableEnterpriseRoots(profiles []nssProfile) error {
	var integrationErrors []error
	for _, profile := range profiles {
		if err := driver.ensureEnterpriseRootsPreference(profile.path); err != nil {
			integrationErrors = append(integrationErrors, fmt.Errorf("enable enterprise roots for firefox profile %s: %w", profile.path, err))
		}
	}
	return errors.Join(integrationErrors...)
}

func (driver *nssDriver) enterpriseRootsEnabled(profilePath string) (bool, error) {
	content, err := driver.fileSystem.ReadFile(filepath.Join(profilePath, firefoxUserPreferenceFile))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.Contains(string(content), firefoxUserPreferenceLine), nil
}

func (driver *nssDriver) ensureEnterpriseRootsPreference(profilePath string) error {
	userPreferencesPath := filepath.Join(profilePath, firefoxUserPreferenceFile)
	existingContent, readErr := driver.fileSystem.ReadFile(userPreferencesPath)
	if readErr != nil && !errors.Is(readErr, fs.ErrNotExist) {
		return readErr
	}

	contentString := string(existingContent)
	if strings.Contains(contentString, firefoxUserPreferenceLine) {
		return nil
	}
	if len(contentString) > 0 && !strings.HasSuffix(contentString, "\n") {
		contentString += "\n"
	}
	contentString += firefoxUserPreferenceLine + "\n"

	return driver.fileSystem.WriteFile(userPreferencesPath, []byte(contentString), 0o600)
}

func (driver *nssDriver) disableEnterpriseRoots(profiles []nssProfile) error {
	var removalErrors []error
	for _, profile := range profiles {
		if err := driver.removeEnterpriseRootsPreference(profile.path); err != nil {
			removalErrors = append(removalErrors, fmt.Errorf("disable enterprise roots for firefox profile %s: %w", profile.path, err))
		}
	}
	return errors.Join(removalErrors...)
}

// removeEnterpriseRootsPreference drops the preference line written by install and keeps
// every other user preference.
func (driver *nssDriver) removeEnterpriseRootsPreference(profilePath string) error {
	userPreferencesPath := filepath.Join(profilePath, firefoxUserPreferenceFile)
	existingContent, readErr := driver.fileSystem.ReadFile(userPreferencesPath)
	if errors.Is(readErr, fs.ErrNotExist) {
		return nil
	}
	if readErr != nil {
		return readErr
	}

	lines := strings.SplitAfter(string(existingContent), "\n")
	keptLines := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == firefoxUserPreferenceLine {
			continue
		}
		keptLines = append(keptLines, line)
	}
	if len(keptLines) == len(lines) {
		return nil
	}
	return driver.fileSystem.WriteFile(userPreferencesPath, []byte(strings.Join(keptLines, "")), 0o600)
}

func firefoxProfiles(profiles []nssProfile) []nssProfile {
	var selected []nssProfile
	for _, profile := range profiles {
		if profile.firefox {
			selected = append(selected, profile)
		}
	}
	return selected
}

// DefaultFirefoxProfileDirectories returns the directories holding Firefox profiles on operatingSystem.
func DefaultFirefoxProfileDirectories(operatingSystem string) []string {
	switch operatingSystem {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		return []string{filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles")}
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		return []string{
			filepath.Join(home, ".mozilla", "firefox"),
			filepath.Join(home, "snap", "firefox", "common", ".mozilla", "firefox"),
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return nil
		}
		return []string{filepath.Join(appData, "Mozilla", "Firefox", "Profiles")}
	default:
		return nil
	}
}

// DefaultNSSDatabaseDirectories returns shared NSS databases outside Firefox, such as the
// one Chromium uses on Linux.
func DefaultNSSDatabaseDirectories(operatingSystem string) []string {
	if operatingSystem != "linux" {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".pki", "nssdb")}
}
