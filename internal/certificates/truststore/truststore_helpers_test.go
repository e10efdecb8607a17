package truststore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/tyemirov/devcert/internal/certificates"
)

type executedCommand struct {
	executable string
	arguments  []string
	privileged bool
}

type scriptedResult struct {
	output []byte
	err    error
}

// recordingCommandRunner records every command and replays scripted results in order.
// Commands beyond the script succeed with empty output.
type recordingCommandRunner struct {
	executed []executedCommand
	results  []scriptedResult
}

func newRecordingCommandRunner(results ...scriptedResult) *recordingCommandRunner {
	return &recordingCommandRunner{executed: []executedCommand{}, results: results}
}

func (runner *recordingCommandRunner) record(executable string, arguments []string, privileged bool) scriptedResult {
	runner.executed = append(runner.executed, executedCommand{executable: executable, arguments: append([]string{}, arguments...), privileged: privileged})
	if len(runner.results) == 0 {
		return scriptedResult{}
	}
	next := runner.results[0]
	runner.results = runner.results[1:]
	return next
}

func (runner *recordingCommandRunner) Run(ctx context.Context, executable string, arguments []string) error {
	return runner.record(executable, arguments, false).err
}

func (runner *recordingCommandRunner) RunWithPrivileges(ctx context.Context, executable string, arguments []string) error {
	return runner.record(executable, arguments, true).err
}

func (runner *recordingCommandRunner) Output(ctx context.Context, executable string, arguments []string) ([]byte, error) {
	result := runner.record(executable, arguments, false)
	return result.output, result.err
}

func commandFailure(executable string, stdout string, stderr string) error {
	return &certificates.CommandFailedError{Executable: executable, Stdout: stdout, Stderr: stderr, Err: errors.New("exit status 1")}
}

func testConfiguration() Configuration {
	return Configuration{
		CertificatePath: "/tmp/devcert/rootCA.pem",
		UniqueName:      "devcert_development_CA_12345",
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func mustWriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
