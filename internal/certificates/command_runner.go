package certificates

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"runtime"
)

const privilegeEscalationExecutable = "sudo"

// CommandRunner executes system commands.
type CommandRunner interface {
	Run(ctx context.Context, executable string, arguments []string) error
	RunWithPrivileges(ctx context.Context, executable string, arguments []string) error
	Output(ctx context.Context, executable string, arguments []string) ([]byte, error)
}

// ExecutableRunner executes commands using the local operating system.
type ExecutableRunner struct {
	operatingSystem string
	isPrivileged    func() bool
}

// NewExecutableRunner constructs an ExecutableRunner.
func NewExecutableRunner() ExecutableRunner {
	return ExecutableRunner{
		operatingSystem: runtime.GOOS,
		isPrivileged: func() bool {
			return os.Geteuid() == 0
		},
	}
}

// Run executes the executable with the provided arguments.
func (executableRunner ExecutableRunner) Run(ctx context.Context, executable string, arguments []string) error {
	_, err := executableRunner.execute(ctx, executable, arguments)
	return err
}

// RunWithPrivileges executes the command through sudo unless the process is already
// privileged or the platform has no sudo equivalent.
func (executableRunner ExecutableRunner) RunWithPrivileges(ctx context.Context, executable string, arguments []string) error {
	name, elevatedArguments := executableRunner.privilegedInvocation(executable, arguments)
	_, err := executableRunner.execute(ctx, name, elevatedArguments)
	return err
}

// Output executes the command and returns its standard output.
func (executableRunner ExecutableRunner) Output(ctx context.Context, executable string, arguments []string) ([]byte, error) {
	return executableRunner.execute(ctx, executable, arguments)
}

func (executableRunner ExecutableRunner) privilegedInvocation(executable string, arguments []string) (string, []string) {
	if executableRunner.operatingSystem == "windows" || executableRunner.isPrivileged() {
		return executable, arguments
	}
	elevatedArguments := make([]string, 0, len(arguments)+2)
	elevatedArguments = append(elevatedArguments, "--", executable)
	elevatedArguments = append(elevatedArguments, arguments...)
	return privilegeEscalationExecutable, elevatedArguments
}

func (executableRunner ExecutableRunner) execute(ctx context.Context, executable string, arguments []string) ([]byte, error) {
	command := exec.CommandContext(ctx, executable, arguments...)
	var stdoutBuffer bytes.Buffer
	var stderrBuffer bytes.Buffer
	command.Stdout = &stdoutBuffer
	command.Stderr = &stderrBuffer
	err := command.Run()
	if err != nil {
		return stdoutBuffer.Bytes(), &CommandFailedError{
			Executable: executable,
			Arguments:  append([]string{}, arguments...),
			Stdout:     stdoutBuffer.String(),
			Stderr:     stderrBuffer.String(),
			Err:        err,
		}
	}
	return stdoutBuffer.Bytes(), nil
}
