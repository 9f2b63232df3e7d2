package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/qbsru/widgetdomains/internal/adapter/postgres"
	"github.com/qbsru/widgetdomains/internal/config"
	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
	"github.com/qbsru/widgetdomains/internal/domain/workspace"
	"github.com/qbsru/widgetdomains/internal/port/certmanager"
	"github.com/qbsru/widgetdomains/internal/port/messagequeue"
	"github.com/qbsru/widgetdomains/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	// Admin output goes to stdout; keep logs out of the way.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	switch args[0] {
	case "list-domains":
		return runAdminListDomains(args[1:])
	case "refresh":
		return runAdminRefresh(args[1:])
	case "add-member":
		return runAdminAddMember(args[1:])
	case "migrate-status":
		return runAdminMigrateStatus(args[1:])
	case "tail-audit":
		return runAdminTailAudit(args[1:])
	case "export-cert":
		return runAdminExportCert(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: widgetdomains admin <command> [options]

Commands:
  list-domains     List a workspace's domains, or every domain awaiting a certificate
  refresh          Poll the certificate manager for one domain or one batch
  add-member       Grant a user a role in a workspace
  migrate-status   Print the applied migration version
  tail-audit       Stream audit events from NATS
  export-cert      Write a domain's issued certificate and key as PEM files
  help             Show this help message

Examples:
  widgetdomains admin list-domains --workspace ws-1
  widgetdomains admin list-domains --pending --json
  widgetdomains admin refresh --workspace ws-1 --id 6f1c...
  widgetdomains admin refresh --all
  widgetdomains admin add-member --workspace ws-1 --user u-42 --role admin
  widgetdomains admin export-cert --workspace ws-1 --id 6f1c... --out /etc/ssl/careers
`)
}

func loadAdminApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(ctx, cfg)
}

func runAdminListDomains(args []string) error {
	fs := flag.NewFlagSet("list-domains", flag.ContinueOnError)
	ws := fs.String("workspace", "", "workspace id")
	pending := fs.Bool("pending", false, "list domains awaiting a certificate in every workspace")
	limit := fs.Int("limit", 100, "maximum rows with --pending")
	asJSON := fs.Bool("json", false, "print JSON even on a terminal")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ws == "" && !*pending {
		return errors.New("--workspace or --pending is required")
	}

	ctx := context.Background()
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var list []customdomain.Config
	if *pending {
		list, err = a.registry.ListAwaitingCertificate(ctx, *limit)
	} else {
		list, err = a.registry.ListDomains(ctx, *ws)
	}
	if err != nil {
		return fmt.Errorf("list domains: %w", err)
	}
	return printDomains(os.Stdout, list, *asJSON || !isTerminal(os.Stdout))
}

func runAdminRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	ws := fs.String("workspace", "", "workspace id")
	id := fs.String("id", "", "domain id")
	all := fs.Bool("all", false, "refresh one batch of domains awaiting a certificate")
	batch := fs.Int("batch", 100, "batch size with --all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*all && (*ws == "" || *id == "") {
		return errors.New("--workspace and --id are required unless --all is set")
	}

	ctx := context.Background()
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if *all {
		n, err := service.NewRefresher(a.registry, 0, *batch).RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("refresh batch: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Refreshed %d domain(s)\n", n)
		return nil
	}

	res, err := a.registry.RefreshSSLStatus(ctx, *id, *ws)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	fmt.Fprintf(os.Stderr, "%s: ssl=%s needs_renewal=%t\n", res.Config.Domain, res.Config.SSLStatus, res.NeedsRenewal)
	return nil
}

func runAdminExportCert(args []string) error {
	fs := flag.NewFlagSet("export-cert", flag.ContinueOnError)
	ws := fs.String("workspace", "", "workspace id (required)")
	id := fs.String("id", "", "domain id (required)")
	out := fs.String("out", ".", "directory for cert.pem and key.pem")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ws == "" || *id == "" {
		return errors.New("--workspace and --id are required")
	}

	ctx := context.Background()
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	exporter, ok := a.certs.(certmanager.Exporter)
	if !ok {
		return fmt.Errorf("provider %s does not hand out private keys", a.cfg.CertManager.Provider)
	}
	cfg, err := a.registry.GetDomain(ctx, *id, *ws)
	if err != nil {
		return err
	}
	if cfg.SSLCertificateID == nil {
		return fmt.Errorf("%s has no certificate", cfg.Domain)
	}
	bundle, err := exporter.ExportCertificate(ctx, *cfg.SSLCertificateID)
	if err != nil {
		return fmt.Errorf("export %s: %w", cfg.Domain, err)
	}
	if err := writeBundle(*out, bundle); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote certificate for %s to %s\n", cfg.Domain, *out)
	return nil
}

// writeBundle writes cert.pem and key.pem into dir. The key is readable by
// the owner only.
func writeBundle(dir string, b *certmanager.Bundle) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cert.pem"), b.CertificatePEM, 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "key.pem"), b.PrivateKeyPEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	return nil
}

func runAdminAddMember(args []string) error {
	fs := flag.NewFlagSet("add-member", flag.ContinueOnError)
	ws := fs.String("workspace", "", "workspace id (required)")
	user := fs.String("user", "", "user id (required)")
	role := fs.String("role", string(workspace.RoleMember), "owner, admin or member")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ws == "" || *user == "" {
		return errors.New("--workspace and --user are required")
	}
	r := workspace.Role(*role)
	if !r.Valid() {
		return fmt.Errorf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	m := &workspace.Membership{WorkspaceID: *ws, UserID: *user, Role: r, CreatedAt: time.Now().UTC()}
	if err := postgres.NewStore(pool).UpsertMembership(ctx, m); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	fmt.Fprintf(os.Stderr, "%s is now %s of %s\n", m.UserID, m.Role, m.WorkspaceID)
	return nil
}

func runAdminMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	v, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func runAdminTailAudit(args []string) error {
	fs := flag.NewFlagSet("tail-audit", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.queue == nil {
		return errors.New("tail-audit needs NATS; set NATS_URL")
	}

	cancel, err := a.queue.Subscribe(ctx, messagequeue.SubjectAuditAll, func(_ context.Context, _ string, data []byte) error {
		_, err := fmt.Fprintln(os.Stdout, string(data))
		return err
	})
	if err != nil {
		return err
	}
	defer cancel()

	<-ctx.Done()
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// printDomains writes a table for people and JSON lines for pipes.
func printDomains(w io.Writer, list []customdomain.Config, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for i := range list {
			if err := enc.Encode(&list[i]); err != nil {
				return err
			}
		}
		return nil
	}

	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No domains found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tWORKSPACE\tDOMAIN\tDNS\tSSL\tEXPIRES")
	for i := range list {
		d := &list[i]
		expires := "-"
		if d.SSLExpiresAt != nil {
			expires = d.SSLExpiresAt.Format(time.DateOnly)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.WorkspaceID, d.Domain, d.DNSStatus(), d.EffectiveSSLStatus(), expires)
	}
	return tw.Flush()
}
