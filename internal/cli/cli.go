// Package cli implements the celltypist command line: flag parsing into
// canonical invocations and their execution.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/YuminosukeSato/celltypist/pkg/log"
)

// Exit codes.
const (
	ExitSuccess           = 0
	ExitPipelineFailure   = 1
	ExitInvalidInvocation = 2
)

const usage = `usage: celltypist <command> [flags]

commands:
  predict   annotate cells with a trained model
  train     train a model from labelled cells

run "celltypist <command> -h" for the flags of a command`

// InvocationError reports a command line that cannot be executed.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// Run executes the command in args (without the program name) and returns
// the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return ExitInvalidInvocation
	}

	var err error
	switch args[0] {
	case "predict":
		var inv PredictInvocation
		if inv, err = ParsePredict(args[1:]); err == nil {
			err = setupLogging(inv.LogLevel, stderr)
		}
		if err == nil {
			err = RunPredict(inv, stdout)
		}
	case "train":
		var inv TrainInvocation
		if inv, err = ParseTrain(args[1:]); err == nil {
			err = setupLogging(inv.LogLevel, stderr)
		}
		if err == nil {
			err = RunTrain(inv, stdout)
		}
	case "-h", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return ExitSuccess
	default:
		err = invalidInvocationf("unknown command %q\n%s", args[0], usage)
	}
	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return ExitSuccess
	}
	if invErr, ok := err.(*InvocationError); ok {
		fmt.Fprintln(stderr, invErr.Message)
		return invErr.ExitCode
	}
	fmt.Fprintln(stderr, "celltypist:", err)
	return ExitPipelineFailure
}

func setupLogging(level string, w io.Writer) error {
	if err := log.SetupLogger(level, w, true); err != nil {
		return invalidInvocationf("--log-level: %v", err)
	}
	return nil
}

// newFlagSet returns a flag set that reports errors instead of printing
// them. -h prints the defaults to the returned buffer.
func newFlagSet(name string) (*flag.FlagSet, *strings.Builder) {
	fs := flag.NewFlagSet("celltypist "+name, flag.ContinueOnError)
	var help strings.Builder
	fs.SetOutput(&help)
	return fs, &help
}

func parseFlags(fs *flag.FlagSet, help *strings.Builder, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return &InvocationError{ExitCode: ExitSuccess, Message: help.String()}
		}
		return invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}
	return nil
}
