package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

type actorModuleFlags struct {
	actor  string
	module string
	json   bool
}

func (c *CLI) parseActorModule(name string, args []string, opts Options) (actorModuleFlags, authz.Module, int) {
	var f actorModuleFlags
	fs := newFlagSet(name, opts)
	fs.StringVar(&f.actor, "actor", "", "actor id to evaluate")
	fs.StringVar(&f.module, "module", "", "catalog module id")
	fs.BoolVar(&f.json, "json", false, "output as JSON")
	if code := parseFlags(fs, args); code >= 0 {
		return f, "", code
	}
	if f.actor == "" || f.module == "" {
		_, _ = fmt.Fprintf(opts.Stderr, "%s: --actor and --module are required\n", name)
		return f, "", ExitUsage
	}
	module, err := c.engine.Catalog().ParseModule(f.module)
	if err != nil {
		return f, "", fail(opts, name, err)
	}
	return f, module, -1
}

func (c *CLI) evaluate(ctx context.Context, args []string, opts Options) int {
	var f actorModuleFlags
	var action, branch string
	fs := newFlagSet("evaluate", opts)
	fs.StringVar(&f.actor, "actor", "", "actor id to evaluate")
	fs.StringVar(&f.module, "module", "", "catalog module id")
	fs.StringVar(&action, "action", "", "catalog action id")
	fs.StringVar(&branch, "branch", "", "branch the request targets")
	fs.BoolVar(&f.json, "json", false, "output as JSON")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if f.actor == "" || f.module == "" || action == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "evaluate: --actor, --module and --action are required")
		return ExitUsage
	}
	decision, err := c.engine.Evaluate(ctx, f.actor, authz.Module(f.module), authz.Action(action), branch)
	if err != nil && !errors.Is(err, authz.ErrActorNotFound) {
		return fail(opts, "evaluate", err)
	}
	if f.json {
		if code := writeJSON(opts, "evaluate", decision); code != ExitOK {
			return code
		}
	} else {
		verdict := "DENY"
		if decision.Allowed {
			verdict = "ALLOW"
		}
		_, _ = fmt.Fprintf(opts.Stdout, "%s %s.%s for %s (%s)\n", verdict, decision.Module, decision.Action, decision.ActorID, decision.Reason)
	}
	if !decision.Allowed {
		return ExitDenied
	}
	return ExitOK
}

func (c *CLI) simulate(ctx context.Context, args []string, opts Options) int {
	f, module, code := c.parseActorModule("simulate", args, opts)
	if code >= 0 {
		return code
	}
	sim, err := c.engine.Simulate(ctx, f.actor, module)
	if err != nil {
		return fail(opts, "simulate", err)
	}
	if f.json {
		return writeJSON(opts, "simulate", sim)
	}
	renderSimulation(opts.Stdout, sim)
	return ExitOK
}

func (c *CLI) policy(ctx context.Context, args []string, opts Options) int {
	f, module, code := c.parseActorModule("policy", args, opts)
	if code >= 0 {
		return code
	}
	preview, err := c.engine.PolicyPreview(ctx, f.actor, module)
	if err != nil {
		return fail(opts, "policy", err)
	}
	if f.json {
		return writeJSON(opts, "policy", preview)
	}
	renderSimulation(opts.Stdout, preview.Simulation)
	_, _ = fmt.Fprintf(opts.Stdout, "Access level: %s\n\n%s\n", preview.AccessLevel, preview.Statement)
	return ExitOK
}

func renderSimulation(out io.Writer, sim authz.Simulation) {
	_, _ = fmt.Fprintf(out, "Actor %s (%s) on %s\n", sim.ActorID, sim.Role, sim.Module)
	_, _ = fmt.Fprintf(out, "  allowed: %s\n", joinActions(sim.Allowed))
	_, _ = fmt.Fprintf(out, "  denied:  %s\n", joinActions(sim.Denied))
}
