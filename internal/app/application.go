package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tyemirov/devcert/internal/certificates"
	"github.com/tyemirov/devcert/internal/certificates/truststore"
	"github.com/tyemirov/devcert/pkg/logging"
)

type contextKey string

const (
	contextKeyApplicationResources contextKey = "application-resources"

	defaultConfigFileName  = "config"
	defaultConfigFileType  = "yaml"
	defaultApplicationName = "devcert"
	defaultTrustStores     = "system,nss,java"

	flagNameConfigFile   = "config"
	flagNameCARoot       = "ca-root"
	flagNameTrustStores  = "trust-stores"
	flagNameLoggingType  = "logging-type"
	flagNameOutputFormat = "format"
	flagNameCertFile     = "cert-file"
	flagNameKeyFile      = "key-file"
	flagNameP12File      = "p12-file"
	flagNameClient       = "client"
	flagNameECDSA        = "ecdsa"
	flagNamePKCS12       = "pkcs12"
	flagNameCSR          = "csr"

	configKeyCARoot                    = "ca.root"
	configKeyTrustStoreTargets         = "truststore.targets"
	configKeyJavaHome                  = "truststore.java_home"
	configKeyFirefoxProfileDirectories = "truststore.firefox_profile_directories"
	configKeyLoggingType               = "logging.type"
	configKeyOutputFormat              = "output.format"
	configKeyKeyAlgorithm              = "certificate.key_algorithm"

	environmentLegacyCARoot      = "CAROOT"
	environmentLegacyTrustStores = "TRUST_STORES"
	environmentJavaHome          = "JAVA_HOME"

	logMessageFailedInitializeLogger = "failed to initialize logger"
	logMessageResolveUserConfigDir   = "resolve user config directory"
	logMessageCommandExecutionFailed = "command execution failed"
)

type driverFactory func(configuration truststore.Configuration) ([]truststore.Driver, error)

type applicationResources struct {
	configurationManager *viper.Viper
	loggingService       *logging.Service
	defaultConfigDirPath string
	buildDrivers         driverFactory
}

func (resources *applicationResources) updateLogger(loggingType string) error {
	normalizedType, err := logging.NormalizeType(loggingType)
	if err != nil {
		return err
	}
	if resources.loggingService != nil && resources.loggingService.Type() == normalizedType {
		return nil
	}
	service, err := logging.NewService(normalizedType)
	if err != nil {
		return err
	}
	if resources.loggingService != nil {
		_ = resources.loggingService.Sync()
	}
	resources.loggingService = service
	return nil
}

func (resources *applicationResources) loggingType() string {
	if resources.loggingService == nil {
		return logging.TypeConsole
	}
	return resources.loggingService.Type()
}

func defaultDriverFactory(configuration truststore.Configuration) ([]truststore.Driver, error) {
	return truststore.NewDrivers(certificates.NewExecutableRunner(), certificates.NewOperatingSystemFileSystem(), configuration)
}

// newConfigurationManager builds the viper instance shared by every command. Legacy
// environment variables are honored next to the DEVCERT_ prefixed ones.
func newConfigurationManager(defaultCARoot string) *viper.Viper {
	configurationManager := viper.New()
	configurationManager.SetEnvPrefix(strings.ToUpper(defaultApplicationName))
	configurationManager.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configurationManager.AutomaticEnv()

	_ = configurationManager.BindEnv(configKeyCARoot, "DEVCERT_CA_ROOT", environmentLegacyCARoot)
	_ = configurationManager.BindEnv(configKeyTrustStoreTargets, "DEVCERT_TRUSTSTORE_TARGETS", environmentLegacyTrustStores)
	_ = configurationManager.BindEnv(configKeyJavaHome, "DEVCERT_TRUSTSTORE_JAVA_HOME", environmentJavaHome)

	configurationManager.SetDefault(configKeyCARoot, defaultCARoot)
	configurationManager.SetDefault(configKeyTrustStoreTargets, defaultTrustStores)
	configurationManager.SetDefault(configKeyJavaHome, "")
	configurationManager.SetDefault(configKeyFirefoxProfileDirectories, []string{})
	configurationManager.SetDefault(configKeyLoggingType, logging.TypeConsole)
	configurationManager.SetDefault(configKeyOutputFormat, string(outputFormatText))
	configurationManager.SetDefault(configKeyKeyAlgorithm, string(certificates.KeyAlgorithmRSA))
	return configurationManager
}

// defaultCARootDirectory follows the per-platform data directory conventions.
func defaultCARootDirectory(operatingSystem string) (string, error) {
	switch operatingSystem {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, certificates.DefaultCertificateDirectoryName), nil
		}
	case "darwin":
		homeDirectory, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDirectory, "Library", "Application Support", certificates.DefaultCertificateDirectoryName), nil
	default:
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, certificates.DefaultCertificateDirectoryName), nil
		}
	}
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDirectory, ".local", "share", certificates.DefaultCertificateDirectoryName), nil
}

// Execute runs the CLI using the provided context and arguments, returning an exit code.
func Execute(ctx context.Context, arguments []string) int {
	initialService, err := logging.NewService(logging.TypeConsole)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", logMessageFailedInitializeLogger, err)
		return 1
	}

	userConfigDir, userConfigErr := os.UserConfigDir()
	if userConfigErr != nil {
		initialService.Error(logMessageResolveUserConfigDir, userConfigErr)
		return 1
	}
	caRootDirectory, caRootErr := defaultCARootDirectory(runtime.GOOS)
	if caRootErr != nil {
		initialService.Error("resolve certificate authority directory", caRootErr)
		return 1
	}

	configurationManager := newConfigurationManager(caRootDirectory)
	resources := &applicationResources{
		configurationManager: configurationManager,
		loggingService:       initialService,
		defaultConfigDirPath: filepath.Join(userConfigDir, defaultApplicationName),
		buildDrivers:         defaultDriverFactory,
	}
	if err := resources.updateLogger(configurationManager.GetString(configKeyLoggingType)); err != nil {
		resources.loggingService = initialService
		resources.loggingService.Error(logMessageFailedInitializeLogger, err)
		return 1
	}
	defer func() {
		if resources.loggingService != nil {
			_ = resources.loggingService.Sync()
		}
	}()

	rootCommand := newRootCommand(resources)
	baseContext := context.WithValue(ctx, contextKeyApplicationResources, resources)
	rootCommand.SetContext(baseContext)
	rootCommand.SetArgs(arguments)

	if executionErr := rootCommand.Execute(); executionErr != nil {
		resources.loggingService.Error(logMessageCommandExecutionFailed, executionErr)
		return 1
	}

	return 0
}

func getApplicationResources(cmd *cobra.Command) (*applicationResources, error) {
	resourceValue := cmd.Context().Value(contextKeyApplicationResources)
	if resourceValue == nil {
		return nil, errors.New("application resources not configured")
	}
	resources, ok := resourceValue.(*applicationResources)
	if !ok {
		return nil, errors.New("invalid application resources type")
	}
	return resources, nil
}

// prepareCommand loads the configuration file and applies the configured logging type.
func prepareCommand(cmd *cobra.Command) error {
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	configurationManager := resources.configurationManager
	configFilePath, flagErr := cmd.Flags().GetString(flagNameConfigFile)
	if flagErr != nil {
		return fmt.Errorf("read config flag: %w", flagErr)
	}
	if configFilePath != "" {
		configurationManager.SetConfigFile(configFilePath)
	} else {
		configurationManager.AddConfigPath(resources.defaultConfigDirPath)
		configurationManager.SetConfigName(defaultConfigFileName)
		configurationManager.SetConfigType(defaultConfigFileType)
	}
	if readErr := configurationManager.ReadInConfig(); readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return fmt.Errorf("read configuration: %w", readErr)
		}
	}
	return resources.updateLogger(configurationManager.GetString(configKeyLoggingType))
}
