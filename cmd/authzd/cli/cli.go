// Package cli implements the authzd operator subcommands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/matrixedit"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
	// ExitDenied reports a successful evaluation that denied access.
	ExitDenied = 3
)

// Engine is the subset of authz.Service the commands drive.
type Engine interface {
	matrixedit.Backend
	Catalog() *authz.Catalog
	Evaluate(ctx context.Context, actorID string, module authz.Module, action authz.Action, branch string) (authz.Decision, error)
	Simulate(ctx context.Context, actorID string, module authz.Module) (authz.Simulation, error)
	PolicyPreview(ctx context.Context, actorID string, module authz.Module) (authz.PolicyPreview, error)
}

// Options carries the output streams. Nil writers default to os.Stdout and
// os.Stderr.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
}

// CLI dispatches subcommands against an engine.
type CLI struct {
	engine Engine
}

// New constructs the command set.
func New(engine Engine) *CLI {
	return &CLI{engine: engine}
}

// Commands lists the supported subcommand names.
func Commands() []string {
	return []string{"evaluate", "simulate", "policy", "matrix"}
}

// IsCommand reports whether name is a supported subcommand.
func IsCommand(name string) bool {
	for _, c := range Commands() {
		if c == name {
			return true
		}
	}
	return false
}

// Run executes args[0] with the remaining args and returns the exit code.
func (c *CLI) Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(args) == 0 {
		_, _ = fmt.Fprintf(opts.Stderr, "usage: authzd <%s> [flags]\n", strings.Join(Commands(), "|"))
		return ExitUsage
	}
	switch args[0] {
	case "evaluate":
		return c.evaluate(ctx, args[1:], opts)
	case "simulate":
		return c.simulate(ctx, args[1:], opts)
	case "policy":
		return c.policy(ctx, args[1:], opts)
	case "matrix":
		return c.matrix(ctx, args[1:], opts)
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "authzd: unknown command %q\n", args[0])
		return ExitUsage
	}
}

func newFlagSet(name string, opts Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(opts.Stderr)
	return fs
}

// parseFlags returns -1 when parsing succeeded, otherwise the exit code.
func parseFlags(fs *pflag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	return -1
}

func writeJSON(opts Options, cmd string, v any) int {
	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "%s: encode json: %v\n", cmd, err)
		return ExitFailure
	}
	return ExitOK
}

func fail(opts Options, cmd string, err error) int {
	_, _ = fmt.Fprintf(opts.Stderr, "%s: %v\n", cmd, err)
	if errors.Is(err, authz.ErrInvalidGrantTuple) || errors.Is(err, authz.ErrUnknownModuleAction) {
		return ExitUsage
	}
	return ExitFailure
}

func joinActions(actions []authz.Action) string {
	if len(actions) == 0 {
		return "-"
	}
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}
