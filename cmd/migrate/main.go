package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"statusbot/migrations"
)

const usage = `Usage: migrate [-db path] <command>

Commands:
  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  status      Show migration status
  version     Show current version
  reset       Roll back all migrations
`

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/statusbot.db"), "path to sqlite database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Error("open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	provider, err := migrations.NewProvider(db)
	if err != nil {
		log.Error("create provider", "error", err)
		os.Exit(1)
	}

	if err := run(context.Background(), provider, args[0], os.Stdout); err != nil {
		log.Error(args[0], "error", err)
		_ = db.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, p *goose.Provider, cmd string, out io.Writer) error {
	switch cmd {
	case "up":
		results, err := p.Up(ctx)
		printResults(out, results)
		return err
	case "up-one":
		result, err := p.UpByOne(ctx)
		printResults(out, []*goose.MigrationResult{result})
		return err
	case "down":
		result, err := p.Down(ctx)
		printResults(out, []*goose.MigrationResult{result})
		return err
	case "reset":
		results, err := p.DownTo(ctx, 0)
		printResults(out, results)
		return err
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05 UTC")
			}
			fmt.Fprintf(out, "%-6d %-30s %s\n", s.Source.Version, s.Source.Path, applied)
		}
		return nil
	case "version":
		version, err := p.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version %d\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printResults(out io.Writer, results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fmt.Fprintf(out, "%s %d %s (%s)\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
