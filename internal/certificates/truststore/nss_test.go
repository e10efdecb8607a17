package truststore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/tyemirov/devcert/internal/certificates"
)

func newTestNSSDriver(commandRunner certificates.CommandRunner, configuration Configuration, certutilPresent bool) *nssDriver {
	return &nssDriver{
		commandRunner:   commandRunner,
		fileSystem:      certificates.NewOperatingSystemFileSystem(),
		configuration:   configuration,
		operatingSystem: "linux",
		lookPath: func(name string) (string, error) {
			if certutilPresent {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("executable file not found in $PATH")
		},
	}
}

// nssFixture creates a Firefox profile with cert9.db, one with cert8.db, a directory without
// a database, and a shared NSS database.
func nssFixture(t *testing.T) (Configuration, string, string, string) {
	t.Helper()
	temporaryDirectory := t.TempDir()
	firefoxDirectory := filepath.Join(temporaryDirectory, "firefox")
	modernProfile := filepath.Join(firefoxDirectory, "modern.default")
	legacyProfile := filepath.Join(firefoxDirectory, "legacy.default")
	sharedDatabase := filepath.Join(temporaryDirectory, "nssdb")
	mustMkdir(t, modernProfile)
	mustMkdir(t, legacyProfile)
	mustMkdir(t, filepath.Join(firefoxDirectory, "Crash Reports"))
	mustMkdir(t, sharedDatabase)
	mustWriteFile(t, filepath.Join(modernProfile, nssModernDatabaseFile), []byte(""))
	mustWriteFile(t, filepath.Join(legacyProfile, nssLegacyDatabaseFile), []byte(""))
	mustWriteFile(t, filepath.Join(sharedDatabase, nssModernDatabaseFile), []byte(""))

	configuration := testConfiguration()
	configuration.FirefoxProfileDirectories = []string{firefoxDirectory, filepath.Join(temporaryDirectory, "missing")}
	configuration.NSSDatabaseDirectories = []string{sharedDatabase}
	return configuration, modernProfile, legacyProfile, sharedDatabase
}

func TestNSSDriverInstallsIntoEveryProfile(t *testing.T) {
	configuration, modernProfile, legacyProfile, sharedDatabase := nssFixture(t)
	commandRunner := newRecordingCommandRunner()
	driver := newTestNSSDriver(commandRunner, configuration, true)

	if !driver.Available(context.Background()) {
		t.Fatalf("expected NSS driver to be available")
	}
	if err := driver.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}

	databases := []string{}
	for _, command := range commandRunner.executed {
		if command.executable != commandNameCertutil || command.arguments[0] != "-A" {
			t.Fatalf("unexpected command %s %v", command.executable, command.arguments)
		}
		if !slices.Contains(command.arguments, configuration.UniqueName) || !slices.Contains(command.arguments, configuration.CertificatePath) {
			t.Fatalf("expected unique name and certificate path in %v", command.arguments)
		}
		databases = append(databases, command.arguments[2])
	}
	slices.Sort(databases)
	expected := []string{"dbm:" + legacyProfile, "sql:" + modernProfile, "sql:" + sharedDatabase}
	slices.Sort(expected)
	if !slices.Equal(databases, expected) {
		t.Fatalf("expected databases %v, got %v", expected, databases)
	}
}

func TestNSSDriverCheckRequiresEveryProfile(t *testing.T) {
	configuration, _, _, _ := nssFixture(t)
	driver := newTestNSSDriver(newRecordingCommandRunner(), configuration, true)
	present, err := driver.Check(context.Background())
	if err != nil || !present {
		t.Fatalf("expected present, got present=%t err=%v", present, err)
	}

	missingRunner := newRecordingCommandRunner(scriptedResult{}, scriptedResult{err: commandFailure(commandNameCertutil, "", "certutil: could not find certificate named")})
	driver = newTestNSSDriver(missingRunner, configuration, true)
	present, err = driver.Check(context.Background())
	if err != nil || present {
		t.Fatalf("expected absent, got present=%t err=%v", present, err)
	}
}

func TestNSSDriverInstallJoinsProfileFailures(t *testing.T) {
	configuration, _, _, _ := nssFixture(t)
	commandRunner := newRecordingCommandRunner(scriptedResult{err: commandFailure(commandNameCertutil, "", "SEC_ERROR_READ_ONLY")})
	driver := newTestNSSDriver(commandRunner, configuration, true)

	err := driver.Install(context.Background())
	if err == nil || !strings.Contains(err.Error(), "SEC_ERROR_READ_ONLY") {
		t.Fatalf("expected joined profile failure, got %v", err)
	}
	if len(commandRunner.executed) != 3 {
		t.Fatalf("expected every profile to be attempted, got %d commands", len(commandRunner.executed))
	}
}

func TestNSSDriverAddsUserPreferenceWhenCertutilMissing(t *testing.T) {
	configuration, modernProfile, legacyProfile, sharedDatabase := nssFixture(t)
	mustWriteFile(t, filepath.Join(legacyProfile, firefoxUserPreferenceFile), []byte("user_pref(\"browser.startup.page\", 3);"))
	commandRunner := newRecordingCommandRunner()
	driver := newTestNSSDriver(commandRunner, configuration, false)

	if !driver.Available(context.Background()) {
		t.Fatalf("expected firefox profiles to keep the driver available")
	}
	present, err := driver.Check(context.Background())
	if err != nil || present {
		t.Fatalf("expected absent before install, got present=%t err=%v", present, err)
	}
	if err := driver.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(commandRunner.executed) != 0 {
		t.Fatalf("expected no certutil commands, got %v", commandRunner.executed)
	}

	for _, profile := range []string{modernProfile, legacyProfile} {
		preferencesContent, readErr := os.ReadFile(filepath.Join(profile, firefoxUserPreferenceFile))
		if readErr != nil {
			t.Fatalf("read user.js: %v", readErr)
		}
		if strings.Count(string(preferencesContent), firefoxUserPreferenceLine) != 1 {
			t.Fatalf("expected enterprise roots preference once in %s, got %s", profile, string(preferencesContent))
		}
	}
	if _, statErr := os.Stat(filepath.Join(sharedDatabase, firefoxUserPreferenceFile)); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("shared NSS database must not receive a firefox preference")
	}

	present, err = driver.Check(context.Background())
	if err != nil || !present {
		t.Fatalf("expected present after install, got present=%t err=%v", present, err)
	}
	if err := driver.Install(context.Background()); err != nil {
		t.Fatalf("second install: %v", err)
	}
	legacyContent, _ := os.ReadFile(filepath.Join(legacyProfile, firefoxUserPreferenceFile))
	if strings.Count(string(legacyContent), firefoxUserPreferenceLine) != 1 {
		t.Fatalf("expected preference to be written once, got %s", string(legacyContent))
	}
}

func TestNSSDriverUnavailableWithoutProfiles(t *testing.T) {
	configuration := testConfiguration()
	configuration.FirefoxProfileDirectories = []string{filepath.Join(t.TempDir(), "none")}
	configuration.NSSDatabaseDirectories = []string{filepath.Join(t.TempDir(), "none")}
	driver := newTestNSSDriver(newRecordingCommandRunner(), configuration, true)
	if driver.Available(context.Background()) {
		t.Fatalf("expected driver without profiles to be unavailable")
	}
	if err := driver.Install(context.Background()); !errors.Is(err, ErrTargetUnavailable) {
		t.Fatalf("expected ErrTargetUnavailable, got %v", err)
	}
}

func TestNSSDriverUnavailableForSharedDatabaseWithoutCertutil(t *testing.T) {
	configuration := testConfiguration()
	sharedDatabase := filepath.Join(t.TempDir(), "nssdb")
	mustMkdir(t, sharedDatabase)
	mustWriteFile(t, filepath.Join(sharedDatabase, nssModernDatabaseFile), []byte(""))
	configuration.FirefoxProfileDirectories = []string{filepath.Join(t.TempDir(), "none")}
	configuration.NSSDatabaseDirectories = []string{sharedDatabase}

	driver := newTestNSSDriver(newRecordingCommandRunner(), configuration, false)
	if driver.Available(context.Background()) {
		t.Fatalf("expected shared database without certutil to be unavailable")
	}
}

func TestNSSDriverUninstall(t *testing.T) {
	configuration, _, _, _ := nssFixture(t)
	commandRunner := newRecordingCommandRunner()
	driver := newTestNSSDriver(commandRunner, configuration, true)
	if err := driver.Uninstall(context.Background()); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if len(commandRunner.executed) != 3 {
		t.Fatalf("expected one removal per profile, got %d", len(commandRunner.executed))
	}
	for _, command := range commandRunner.executed {
		if command.arguments[0] != "-D" {
			t.Fatalf("unexpected removal arguments %v", command.arguments)
		}
	}
}

func TestNSSDriverUninstallRemovesUserPreferenceWhenCertutilMissing(t *testing.T) {
	configuration, modernProfile, legacyProfile, _ := nssFixture(t)
	existingPreference := "user_pref(\"browser.startup.page\", 3);"
	mustWriteFile(t, filepath.Join(legacyProfile, firefoxUserPreferenceFile), []byte(existingPreference))
	commandRunner := newRecordingCommandRunner()
	driver := newTestNSSDriver(commandRunner, configuration, false)

	if err := driver.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := driver.Uninstall(context.Background()); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if len(commandRunner.executed) != 0 {
		t.Fatalf("expected no certutil commands, got %v", commandRunner.executed)
	}

	present, err := driver.Check(context.Background())
	if err != nil || present {
		t.Fatalf("expected absent after uninstall, got present=%t err=%v", present, err)
	}
	legacyContent, readErr := os.ReadFile(filepath.Join(legacyProfile, firefoxUserPreferenceFile))
	if readErr != nil {
		t.Fatalf("read user.js: %v", readErr)
	}
	if strings.TrimSpace(string(legacyContent)) != existingPreference {
		t.Fatalf("expected unrelated preferences to be kept, got %q", string(legacyContent))
	}
	modernContent, readErr := os.ReadFile(filepath.Join(modernProfile, firefoxUserPreferenceFile))
	if readErr != nil {
		t.Fatalf("read user.js: %v", readErr)
	}
	if strings.Contains(string(modernContent), firefoxUserPreferenceLine) {
		t.Fatalf("expected enterprise roots preference to be removed, got %q", string(modernContent))
	}
}

func TestNSSDriverUninstallUnavailableWithoutCertutilOrFirefox(t *testing.T) {
	configuration := testConfiguration()
	sharedDatabase := filepath.Join(t.TempDir(), "nssdb")
	mustMkdir(t, sharedDatabase)
	mustWriteFile(t, filepath.Join(sharedDatabase, nssModernDatabaseFile), []byte(""))
	configuration.FirefoxProfileDirectories = []string{filepath.Join(t.TempDir(), "none")}
	configuration.NSSDatabaseDirectories = []string{sharedDatabase}

	driver := newTestNSSDriver(newRecordingCommandRunner(), configuration, false)
	if err := driver.Uninstall(context.Background()); !errors.Is(err, ErrTargetUnavailable) {
		t.Fatalf("expected ErrTargetUnavailable, got %v", err)
	}
}

// listingFileSystem records the directories listed through the FileSystem seam.
type listingFileSystem struct {
	certificates.OperatingSystemFileSystem
	listed *[]string
}

func (fileSystem listingFileSystem) ReadDirectory(path string) ([]fs.DirEntry, error) {
	*fileSystem.listed = append(*fileSystem.listed, path)
	return fileSystem.OperatingSystemFileSystem.ReadDirectory(path)
}

func TestNSSDriverDiscoversProfilesThroughFileSystem(t *testing.T) {
	configuration, _, _, _ := nssFixture(t)
	var listed []string
	driver := newTestNSSDriver(newRecordingCommandRunner(), configuration, true)
	driver.fileSystem = listingFileSystem{OperatingSystemFileSystem: certificates.NewOperatingSystemFileSystem(), listed: &listed}

	if profiles := driver.discoverProfiles(); len(profiles) != 3 {
		t.Fatalf("expected three profiles, got %d", len(profiles))
	}
	if !slices.Equal(listed, configuration.FirefoxProfileDirectories) {
		t.Fatalf("expected every firefox directory to be listed through the file system, got %v", listed)
	}
}
