package argstruct

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

type ExitCode int

const (
	ExitCodeSuccess          ExitCode = 0
	ExitCodeError            ExitCode = 1
	ExitCodeMisconfiguration ExitCode = 2
)

// Action may be implemented by a schema struct (root or sub-command). After a successful parse,
// [Execute] runs the action of the deepest selected sub-command, falling back to the root's.
type Action interface {
	Run(context.Context) error
}

type ActionFunc func(context.Context) error

func (f ActionFunc) Run(ctx context.Context) error {
	if f != nil {
		return f(ctx)
	}
	return nil
}

// SetupSignalHandler returns a context that is canceled when a termination signal (SIGINT or
// SIGTERM) is delivered to the process.
func SetupSignalHandler() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

// ExecuteWithContext parses the given CLI arguments and environment snapshot with the given
// parser and runs the selected action. Parse failures print the error and a usage line and yield
// a misconfiguration exit code; --help prints the help screen and yields success.
func ExecuteWithContext(ctx context.Context, w io.Writer, p *Parser, args []string, envVars map[string]string) (exitCode ExitCode) {
	if err := p.Parse(args, envVars); err != nil {
		_, _ = fmt.Fprintln(w, err)
		if err := p.PrintUsageLine(w, getTerminalWidth()); err != nil {
			_, _ = fmt.Fprintf(w, "%s\n", err)
			return ExitCodeError
		}
		return ExitCodeMisconfiguration
	}

	if p.HelpRequested() {
		if err := p.PrintHelp(w, getTerminalWidth()); err != nil {
			_, _ = fmt.Fprintf(w, "%s\n", err)
			return ExitCodeMisconfiguration
		}
		return ExitCodeSuccess
	}

	// Run the deepest selected action; without one, the help screen is the action
	target := p.deepestTarget()
	if target.CanAddr() {
		if action, ok := target.Addr().Interface().(Action); ok {
			if err := action.Run(ctx); err != nil {
				_, _ = fmt.Fprintln(w, err)
				return ExitCodeError
			}
			return ExitCodeSuccess
		}
	}
	if err := p.PrintHelp(w, getTerminalWidth()); err != nil {
		_, _ = fmt.Fprintf(w, "%s\n", err)
		return ExitCodeError
	}
	return ExitCodeSuccess
}

// Execute is like [ExecuteWithContext], with a context that gets canceled when an OS termination
// signal is received.
//
//goland:noinspection GoUnusedExportedFunction
func Execute(w io.Writer, p *Parser, args []string, envVars map[string]string) ExitCode {
	ctx, cancel := context.WithCancel(SetupSignalHandler())
	defer cancel()

	return ExecuteWithContext(ctx, w, p, args, envVars)
}
