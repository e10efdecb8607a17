package certificates

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCARootNotFound reports a CA directory holding a private key without its certificate.
	ErrCARootNotFound = errors.New("certificate authority root certificate not found")
	// ErrCAKeyMissing reports a CA directory holding a certificate without its private key.
	ErrCAKeyMissing = errors.New("certificate authority private key missing")
	// ErrEmptyHostList reports a certificate request without hosts.
	ErrEmptyHostList = errors.New("at least one host is required")
)

// InvalidHostnameError reports a host that failed subject alternative name validation.
type InvalidHostnameError struct {
	Host   string
	Reason string
}

func (err *InvalidHostnameError) Error() string {
	return fmt.Sprintf("invalid hostname %q: %s", err.Host, err.Reason)
}

// CertificateError wraps failures of key generation, signing, or encoding.
type CertificateError struct {
	Operation string
	Err       error
}

func (err *CertificateError) Error() string {
	return fmt.Sprintf("certificate %s: %v", err.Operation, err.Err)
}

func (err *CertificateError) Unwrap() error {
	return err.Err
}

func newCertificateError(operation string, err error) error {
	return &CertificateError{Operation: operation, Err: err}
}

// CommandFailedError reports an external command that could not run or exited with a failure.
type CommandFailedError struct {
	Executable string
	Arguments  []string
	Stdout     string
	Stderr     string
	Err        error
}

func (err *CommandFailedError) Error() string {
	diagnostic := strings.TrimSpace(err.Stderr)
	if diagnostic == "" {
		diagnostic = strings.TrimSpace(err.Stdout)
	}
	if diagnostic == "" {
		return fmt.Sprintf("execute %s: %v", err.Executable, err.Err)
	}
	return fmt.Sprintf("execute %s: %v: %s", err.Executable, err.Err, diagnostic)
}

func (err *CommandFailedError) Unwrap() error {
	return err.Err
}

// CommandOutputContains reports whether err carries a failed command whose captured
// stdout or stderr contains signature.
func CommandOutputContains(err error, signature string) bool {
	var commandErr *CommandFailedError
	if !errors.As(err, &commandErr) {
		return false
	}
	return strings.Contains(commandErr.Stderr, signature) || strings.Contains(commandErr.Stdout, signature)
}
