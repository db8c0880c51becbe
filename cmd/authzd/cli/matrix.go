package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/matrixedit"
)

// MatrixSummary is the JSON output of the matrix command.
type MatrixSummary struct {
	Role    authz.Role         `json:"role"`
	Cells   []authz.MatrixCell `json:"cells"`
	Toggled []string           `json:"toggled,omitempty"`
	Saved   *authz.BatchResult `json:"saved,omitempty"`
}

// matrix loads a role's matrix into an editor, applies --toggle, --allow and
// --deny cell edits in order and optionally pushes the full view with
// --save-all.
func (c *CLI) matrix(ctx context.Context, args []string, opts Options) int {
	var (
		role    string
		toggles []string
		allows  []string
		denies  []string
		saveAll bool
		asJSON  bool
	)
	fs := newFlagSet("matrix", opts)
	fs.StringVar(&role, "role", "", "canonical role id")
	fs.StringSliceVar(&toggles, "toggle", nil, "flip a cell, module.action (repeatable)")
	fs.StringSliceVar(&allows, "allow", nil, "allow a cell, module.action (repeatable)")
	fs.StringSliceVar(&denies, "deny", nil, "deny a cell, module.action (repeatable)")
	fs.BoolVar(&saveAll, "save-all", false, "write every catalog cell, unset cells as denied")
	fs.BoolVar(&asJSON, "json", false, "output as JSON")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if role == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "matrix: --role is required")
		return ExitUsage
	}
	parsedRole, err := authz.ParseRole(role)
	if err != nil {
		return fail(opts, "matrix", err)
	}
	editor, err := matrixedit.New(c.engine, parsedRole)
	if err != nil {
		return fail(opts, "matrix", err)
	}
	if err := editor.Load(ctx); err != nil {
		return fail(opts, "matrix", err)
	}

	summary := MatrixSummary{Role: parsedRole}
	catalog := c.engine.Catalog()
	for _, raw := range toggles {
		module, action, err := parseCell(catalog, raw)
		if err != nil {
			return fail(opts, "matrix", err)
		}
		allowed, err := editor.Toggle(ctx, module, action)
		if err != nil {
			return fail(opts, "matrix", err)
		}
		summary.Toggled = append(summary.Toggled, fmt.Sprintf("%s.%s=%t", module, action, allowed))
	}
	for _, edit := range []struct {
		cells   []string
		allowed bool
	}{{allows, true}, {denies, false}} {
		for _, raw := range edit.cells {
			module, action, err := parseCell(catalog, raw)
			if err != nil {
				return fail(opts, "matrix", err)
			}
			if err := editor.Set(ctx, module, action, edit.allowed); err != nil {
				return fail(opts, "matrix", err)
			}
		}
	}
	if saveAll {
		result := editor.SaveAll(ctx)
		summary.Saved = &result
		if err := result.Err(); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "matrix: %d of %d cells failed: %v\n", result.Failed, result.Applied+result.Failed, err)
		}
	}
	summary.Cells = editor.Cells()

	code := ExitOK
	if summary.Saved != nil && summary.Saved.Failed > 0 {
		code = ExitFailure
	}
	if asJSON {
		if jsonCode := writeJSON(opts, "matrix", summary); jsonCode != ExitOK {
			return jsonCode
		}
		return code
	}
	renderMatrix(opts.Stdout, summary)
	return code
}

// parseCell splits "module.action" and validates it against the catalog.
func parseCell(catalog *authz.Catalog, raw string) (authz.Module, authz.Action, error) {
	rawModule, rawAction, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok {
		return "", "", fmt.Errorf("%w: cell %q must be module.action", authz.ErrInvalidGrantTuple, raw)
	}
	module, err := catalog.ParseModule(rawModule)
	if err != nil {
		return "", "", err
	}
	action, err := catalog.ParseAction(module, rawAction)
	if err != nil {
		return "", "", err
	}
	return module, action, nil
}

func renderMatrix(out io.Writer, summary MatrixSummary) {
	_, _ = fmt.Fprintf(out, "Matrix for %s\n", summary.Role)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODULE\tACTION\tSTATE")
	for _, cell := range summary.Cells {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", cell.Module, cell.Action, cell.Status)
	}
	_ = tw.Flush()
	for _, t := range summary.Toggled {
		_, _ = fmt.Fprintf(out, "toggled %s\n", t)
	}
	if summary.Saved != nil {
		_, _ = fmt.Fprintf(out, "saved %d cells, %d failed\n", summary.Saved.Applied, summary.Saved.Failed)
	}
}
