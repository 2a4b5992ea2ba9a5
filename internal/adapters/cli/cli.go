package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"freelance-office/internal/app"
	"freelance-office/internal/db"
)

// Usage lists the one-shot commands.
const Usage = `Usage: app <command> [args]

Commands:
  migrate                           apply pending database migrations
  sweep                             expire quotes, flag overdue invoices, abandon stale payments
  audit                             report rows that break money or status invariants
  export quote|invoice <id> <file>  write an XLSX export
  draft "<brief>"                   ask the AI agent for quote line items
  token <user-id>                   issue an admin API token`

// Env carries what the commands need beyond the ApplicationService.
type Env struct {
	Svc        app.ApplicationService
	Migrate    func(ctx context.Context) (*db.MigrationResult, error)
	JWTSecret  string
	IssueToken func(secret string, userID int, role string, ttl time.Duration) (string, error)
	Out        io.Writer
}

// ErrUsage is returned for unknown commands or missing arguments.
var ErrUsage = errors.New("usage")

// Run executes a one-shot CLI command.
// args is os.Args[1:]; the first element is the subcommand name.
func Run(ctx context.Context, env Env, args []string) error {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given\n%s", ErrUsage, Usage)
	}

	switch args[0] {
	case "migrate":
		res, err := env.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintf(env.Out, "Applied %d migration(s), %d already up to date.\n", len(res.Applied), len(res.Skipped))
		for _, name := range res.Applied {
			fmt.Fprintf(env.Out, "  + %s\n", name)
		}
		return nil

	case "sweep":
		res, err := env.Svc.RunSweep(ctx, time.Now())
		if res != nil {
			fmt.Fprintf(env.Out, "Expired quotes:      %d\n", res.ExpiredQuotes)
			fmt.Fprintf(env.Out, "Overdue invoices:    %d\n", res.OverdueInvoices)
			fmt.Fprintf(env.Out, "Abandoned payments:  %d\n", res.AbandonedPayments)
			fmt.Fprintf(env.Out, "Reverted quotes:     %d\n", res.RevertedQuotes)
		}
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		return nil

	case "audit":
		res, err := env.Svc.RunAudit(ctx)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		printAudit(env.Out, res)
		if !res.Clean {
			return fmt.Errorf("audit found %d problem(s)", len(res.Findings))
		}
		return nil

	case "export":
		if len(args) < 4 {
			return fmt.Errorf("%w: app export quote|invoice <id> <file>", ErrUsage)
		}
		id, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("%w: invalid id %q", ErrUsage, args[2])
		}
		return exportDocument(ctx, env, args[1], id, args[3])

	case "draft":
		if len(args) < 2 {
			return fmt.Errorf("%w: app draft \"<brief>\"", ErrUsage)
		}
		res, err := env.Svc.DraftQuote(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("draft: %w", err)
		}
		enc := json.NewEncoder(env.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Draft)

	case "token":
		if len(args) < 2 {
			return fmt.Errorf("%w: app token <user-id>", ErrUsage)
		}
		userID, err := strconv.Atoi(args[1])
		if err != nil || userID <= 0 {
			return fmt.Errorf("%w: invalid user id %q", ErrUsage, args[1])
		}
		token, err := env.IssueToken(env.JWTSecret, userID, "admin", 24*time.Hour)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		fmt.Fprintln(env.Out, token)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q\n%s", ErrUsage, args[0], Usage)
}

func exportDocument(ctx context.Context, env Env, kind string, id int, path string) (err error) {
	var write func(context.Context, int, io.Writer) error
	switch kind {
	case "quote":
		write = env.Svc.ExportQuote
	case "invoice":
		write = env.Svc.ExportInvoice
	default:
		return fmt.Errorf("%w: export kind must be quote or invoice, got %q", ErrUsage, kind)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	if err := write(ctx, id, f); err != nil {
		return fmt.Errorf("export %s %d: %w", kind, id, err)
	}
	fmt.Fprintf(env.Out, "Wrote %s %d to %s\n", kind, id, path)
	return nil
}

func printAudit(w io.Writer, res *app.AuditResult) {
	if res.Clean {
		fmt.Fprintln(w, "Audit clean: no invariant violations.")
		return
	}
	fmt.Fprintln(w, strings.Repeat("=", 78))
	fmt.Fprintf(w, "  %-12s %-6s %-14s %s\n", "ENTITY", "ID", "NUMBER", "PROBLEM")
	fmt.Fprintln(w, strings.Repeat("-", 78))
	for _, f := range res.Findings {
		fmt.Fprintf(w, "  %-12s %-6d %-14s %s\n", f.Entity, f.ID, f.Number, f.Problem)
	}
	fmt.Fprintln(w, strings.Repeat("=", 78))
}
