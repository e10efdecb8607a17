package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tyemirov/devcert/internal/certificates"
	"github.com/tyemirov/devcert/pkg/logging"
)

const (
	logFieldCertificatePath = "certificate_path"
	logFieldHostCount       = "host_count"
	logFieldTarget          = "target"
)

type issueOptions struct {
	certificatePath      string
	privateKeyPath       string
	pkcs12Path           string
	clientAuthentication bool
	useECDSA             bool
	exportPKCS12         bool
	csrPath              string
}

func newRootCommand(resources *applicationResources) *cobra.Command {
	options := &issueOptions{}
	rootCommand := &cobra.Command{
		Use:           fmt.Sprintf("%s [hosts...]", defaultApplicationName),
		Short:         "Issue locally trusted development certificates",
		Long:          "Creates a local certificate authority on first use and issues certificates for DNS names, IP addresses, email addresses, and URIs.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareCommand(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && options.csrPath == "" {
				return cmd.Help()
			}
			return runIssue(cmd, args, *options)
		},
	}

	globalFlags := pflag.NewFlagSet("global", pflag.ContinueOnError)
	configureGlobalFlags(globalFlags, resources.configurationManager)
	rootCommand.PersistentFlags().AddFlagSet(globalFlags)

	rootCommand.Flags().StringVar(&options.certificatePath, flagNameCertFile, "", "Write the certificate to this path")
	rootCommand.Flags().StringVar(&options.privateKeyPath, flagNameKeyFile, "", "Write the private key to this path")
	rootCommand.Flags().StringVar(&options.pkcs12Path, flagNameP12File, "", "Write the PKCS#12 bundle to this path (implies --pkcs12)")
	rootCommand.Flags().BoolVar(&options.clientAuthentication, flagNameClient, false, "Issue a client authentication certificate")
	rootCommand.Flags().BoolVar(&options.useECDSA, flagNameECDSA, false, "Generate an ECDSA P-256 key instead of RSA")
	rootCommand.Flags().BoolVar(&options.exportPKCS12, flagNamePKCS12, false, "Also write a PKCS#12 bundle with the certificate, key, and local CA")
	rootCommand.Flags().StringVar(&options.csrPath, flagNameCSR, "", "Sign the certificate signing request at this path instead of generating a key")

	rootCommand.AddCommand(
		newInstallCommand(),
		newUninstallCommand(),
		newStatusCommand(),
		newCARootCommand(),
		newInspectCommand(),
	)

	return rootCommand
}

func configureGlobalFlags(flagSet *pflag.FlagSet, configurationManager *viper.Viper) {
	flagSet.String(flagNameConfigFile, "", "Path to configuration file")
	flagSet.String(flagNameCARoot, configurationManager.GetString(configKeyCARoot), "Directory holding the local certificate authority")
	flagSet.String(flagNameTrustStores, configurationManager.GetString(configKeyTrustStoreTargets), "Comma separated trust stores to manage (system, nss, java)")
	flagSet.String(flagNameLoggingType, configurationManager.GetString(configKeyLoggingType), "Logging type (CONSOLE or JSON)")
	flagSet.String(flagNameOutputFormat, configurationManager.GetString(configKeyOutputFormat), "Output format (text, json, or yaml)")
	_ = configurationManager.BindPFlag(configKeyCARoot, flagSet.Lookup(flagNameCARoot))
	_ = configurationManager.BindPFlag(configKeyTrustStoreTargets, flagSet.Lookup(flagNameTrustStores))
	_ = configurationManager.BindPFlag(configKeyLoggingType, flagSet.Lookup(flagNameLoggingType))
	_ = configurationManager.BindPFlag(configKeyOutputFormat, flagSet.Lookup(flagNameOutputFormat))
}

func runIssue(cmd *cobra.Command, hosts []string, options issueOptions) error {
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	format, err := parseOutputFormat(resources.configurationManager.GetString(configKeyOutputFormat))
	if err != nil {
		return err
	}
	services, err := resources.certificateServices()
	if err != nil {
		return err
	}

	if options.csrPath != "" {
		if len(hosts) > 0 {
			return errors.New("--csr cannot be combined with host arguments")
		}
		if options.privateKeyPath != "" || options.exportPKCS12 || options.pkcs12Path != "" {
			return errors.New("--csr only writes a certificate; --key-file and PKCS#12 options do not apply")
		}
		issued, signErr := services.issuer.SignCertificateRequest(cmd.Context(), certificates.CertificateSigningRequest{
			CSRPath:         options.csrPath,
			CertificatePath: options.certificatePath,
		})
		if signErr != nil {
			return fmt.Errorf("sign certificate request: %w", signErr)
		}
		logIssuedCertificate(resources, issued)
		return renderReport(cmd.OutOrStdout(), format, newIssuanceReport(issued))
	}

	keyAlgorithm, err := certificates.ParseKeyAlgorithm(resources.configurationManager.GetString(configKeyKeyAlgorithm))
	if err != nil {
		return err
	}
	if options.useECDSA {
		keyAlgorithm = certificates.KeyAlgorithmECDSA
	}
	issued, issueErr := services.issuer.IssueCertificate(cmd.Context(), certificates.CertificateRequest{
		Hosts:                hosts,
		CertificatePath:      options.certificatePath,
		PrivateKeyPath:       options.privateKeyPath,
		PKCS12Path:           options.pkcs12Path,
		ClientAuthentication: options.clientAuthentication,
		KeyAlgorithm:         keyAlgorithm,
		ExportPKCS12:         options.exportPKCS12 || options.pkcs12Path != "",
	})
	if issueErr != nil {
		return fmt.Errorf("issue certificate: %w", issueErr)
	}
	logIssuedCertificate(resources, issued)
	return renderReport(cmd.OutOrStdout(), format, newIssuanceReport(issued))
}

func logIssuedCertificate(resources *applicationResources, issued certificates.IssuedCertificate) {
	if resources.loggingService == nil || resources.loggingType() == logging.TypeConsole {
		return
	}
	resources.loggingService.Info("certificate issued",
		logging.String(logFieldCertificatePath, issued.Paths.CertificatePath),
		logging.Int(logFieldHostCount, len(issued.SubjectAlternativeNames)),
	)
}
