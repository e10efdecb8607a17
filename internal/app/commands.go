package app

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tyemirov/devcert/internal/certificates"
	"github.com/tyemirov/devcert/internal/certificates/truststore"
	"github.com/tyemirov/devcert/pkg/logging"
)

func newInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Create the local CA if needed and add it to the configured trust stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrustOperation(cmd, true, func(dispatcher *truststore.Dispatcher, cmd *cobra.Command) (truststore.Result, error) {
				return dispatcher.Install(cmd.Context())
			})
		},
	}
}

func newUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the local CA from the configured trust stores (the CA files are kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrustOperation(cmd, false, func(dispatcher *truststore.Dispatcher, cmd *cobra.Command) (truststore.Result, error) {
				return dispatcher.Uninstall(cmd.Context())
			})
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which trust stores hold the local CA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrustOperation(cmd, false, func(dispatcher *truststore.Dispatcher, cmd *cobra.Command) (truststore.Result, error) {
				return dispatcher.Status(cmd.Context()), nil
			})
		},
	}
}

type trustOperation func(dispatcher *truststore.Dispatcher, cmd *cobra.Command) (truststore.Result, error)

// runTrustOperation renders the per-target result even when a required target failed.
func runTrustOperation(cmd *cobra.Command, createAuthority bool, operation trustOperation) error {
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

	var authority *certificates.CertificateAuthority
	if createAuthority {
		authority, err = services.authorities.EnsureCertificateAuthority(cmd.Context())
	} else {
		authority, err = services.authorities.LoadCertificateAuthority()
	}
	if err != nil {
		return err
	}

	dispatcher, err := resources.trustStoreDispatcher(authority)
	if err != nil {
		return err
	}
	result, operationErr := operation(dispatcher, cmd)
	for _, warning := range result.Warnings {
		resources.loggingService.Warn("trust store operation failed",
			logging.String(logFieldTarget, warning.Target.String()),
			logging.ErrorField(warning.Err),
		)
	}

	report := trustReport{
		CARoot:     services.authorities.Configuration().DirectoryPath,
		UniqueName: authority.UniqueName(),
		Result:     result,
	}
	if renderErr := renderReport(cmd.OutOrStdout(), format, report); renderErr != nil {
		return renderErr
	}
	return operationErr
}

func newCARootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "caroot",
		Short: "Print the directory holding the local CA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := getApplicationResources(cmd)
			if err != nil {
				return err
			}
			format, err := parseOutputFormat(resources.configurationManager.GetString(configKeyOutputFormat))
			if err != nil {
				return err
			}
			caRootDirectory, err := resolveCARoot(resources.configurationManager)
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), format, caRootReport{CARoot: caRootDirectory})
		},
	}
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <certificate.pem>",
		Short: "Show a certificate's names and expiry and verify it against the local CA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := getApplicationResources(cmd)
			if err != nil {
				return err
			}
			format, err := parseOutputFormat(resources.configurationManager.GetString(configKeyOutputFormat))
			if err != nil {
				return err
			}
			certificatePEM, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read certificate: %w", err)
			}
			services, err := resources.certificateServices()
			if err != nil {
				return err
			}

			authority, loadErr := services.authorities.LoadCertificateAuthority()
			// Inspection still works without a usable local CA; the chain is then reported as unverified.
			if loadErr != nil && !errors.Is(loadErr, certificates.ErrCARootNotFound) && !errors.Is(loadErr, certificates.ErrCAKeyMissing) {
				return loadErr
			}
			var rootCertificate *x509.Certificate
			if authority != nil {
				rootCertificate = authority.Certificate()
			}
			report, err := certificates.InspectCertificate(certificatePEM, rootCertificate, time.Now())
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), format, inspectionReport{Path: args[0], CertificateReport: report})
		},
	}
}
