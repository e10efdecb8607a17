package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/tyemirov/devcert/internal/certificates/truststore"
	"github.com/tyemirov/devcert/pkg/logging"
)

type stubDriver struct {
	target     truststore.Target
	available  bool
	installed  bool
	installErr error
}

func (driver *stubDriver) Target() truststore.Target {
	return driver.target
}

func (driver *stubDriver) Available(context.Context) bool {
	return driver.available
}

func (driver *stubDriver) Check(context.Context) (bool, error) {
	return driver.installed, nil
}

func (driver *stubDriver) Install(context.Context) error {
	if driver.installErr != nil {
		return driver.installErr
	}
	driver.installed = true
	return nil
}

func (driver *stubDriver) Uninstall(context.Context) error {
	driver.installed = false
	return nil
}

func stubDriverFactory(drivers ...*stubDriver) driverFactory {
	return func(truststore.Configuration) ([]truststore.Driver, error) {
		result := make([]truststore.Driver, 0, len(drivers))
		for _, driver := range drivers {
			result = append(result, driver)
		}
		return result, nil
	}
}

func newTestResources(testingInstance *testing.T, factory driverFactory) *applicationResources {
	testingInstance.Helper()
	testingInstance.Setenv(environmentLegacyCARoot, "")
	testingInstance.Setenv(environmentLegacyTrustStores, "")
	testingInstance.Setenv("DEVCERT_CA_ROOT", "")
	testingInstance.Setenv("DEVCERT_TRUSTSTORE_TARGETS", "")
	return &applicationResources{
		configurationManager: newConfigurationManager(testingInstance.TempDir()),
		loggingService:       logging.NewTestService(logging.TypeConsole),
		defaultConfigDirPath: testingInstance.TempDir(),
		buildDrivers:         factory,
	}
}

func executeCommand(testingInstance *testing.T, resources *applicationResources, arguments ...string) (string, error) {
	testingInstance.Helper()
	rootCommand := newRootCommand(resources)
	var output bytes.Buffer
	rootCommand.SetOut(&output)
	rootCommand.SetErr(&output)
	rootCommand.SetArgs(arguments)
	executionErr := rootCommand.ExecuteContext(context.WithValue(context.Background(), contextKeyApplicationResources, resources))
	return output.String(), executionErr
}
