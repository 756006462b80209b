package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/api"
	"github.com/celerix-dev/celerix-staffing/internal/config"
	"github.com/celerix-dev/celerix-staffing/internal/logging"
	"github.com/celerix-dev/celerix-staffing/internal/roster"
	"github.com/celerix-dev/celerix-staffing/internal/seed"
	"github.com/celerix-dev/celerix-staffing/pkg/engine"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
)

var ErrUsage = errors.New("usage")

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUsage}, args...)...)
}

// Execute runs one CLI command, writing results to out.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		return usage("staffing <command> [...]")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Configure(cfg.LogLevel, cfg.LogJSON)

	cmd, args := strings.ToLower(args[0]), args[1:]
	if cmd == "token" {
		return runToken(cfg, args, out)
	}

	opts, err := cfg.StoreOptions()
	if err != nil {
		return err
	}
	switch cmd {
	case "find", "get", "insert", "update", "migrate", "seed", "import-staff", "ping":
	default:
		return usage("unknown command %q", cmd)
	}

	store, err := sdk.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	switch cmd {
	case "find":
		return runFind(ctx, store, args, out)
	case "get":
		return runGet(ctx, store, args, out)
	case "insert":
		return runInsert(ctx, store, args, out)
	case "update":
		return runUpdate(ctx, store, args, out)
	case "migrate":
		return runMigrate(ctx, store, opts, args, out)
	case "seed":
		return runSeed(ctx, store, cfg, args, out)
	case "import-staff":
		return runImportStaff(ctx, store, args, out)
	default:
		return runPing(ctx, store, out)
	}
}

func runFind(ctx context.Context, store recordstore.Reader, args []string, out io.Writer) error {
	if len(args) < 1 {
		return usage("staffing find <collection> [field=value ...]")
	}
	var filter recordstore.Filter
	for _, kv := range args[1:] {
		field, value, ok := strings.Cut(kv, "=")
		if !ok {
			return usage("filter %q must be field=value", kv)
		}
		filter = append(filter, recordstore.Eq(field, value))
	}
	recs, err := store.FindMany(ctx, args[0], recordstore.Query{
		Filter: filter,
		Order:  &recordstore.Order{Field: recordstore.FieldCreatedAt},
	})
	if err != nil {
		return err
	}
	return printJSON(out, recs)
}

func runGet(ctx context.Context, store recordstore.Reader, args []string, out io.Writer) error {
	if len(args) != 2 {
		return usage("staffing get <collection> <id>")
	}
	rec, err := store.FindOne(ctx, args[0], recordstore.Where(recordstore.Eq(recordstore.FieldID, args[1])))
	if err != nil {
		return err
	}
	return printJSON(out, rec)
}

func decodeFields(s string) (recordstore.Record, error) {
	var fields recordstore.Record
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, fmt.Errorf("fields must be a JSON object: %w", err)
	}
	return fields, nil
}

func runInsert(ctx context.Context, store recordstore.Writer, args []string, out io.Writer) error {
	if len(args) != 2 {
		return usage("staffing insert <collection> <json>")
	}
	fields, err := decodeFields(args[1])
	if err != nil {
		return err
	}
	rec, err := store.Insert(ctx, args[0], fields)
	if err != nil {
		return err
	}
	return printJSON(out, rec)
}

func runUpdate(ctx context.Context, store recordstore.Writer, args []string, out io.Writer) error {
	if len(args) != 3 {
		return usage("staffing update <collection> <id> <json>")
	}
	fields, err := decodeFields(args[2])
	if err != nil {
		return err
	}
	rec, err := store.Update(ctx, args[0], args[1], fields)
	if err != nil {
		return err
	}
	return printJSON(out, rec)
}

// runMigrate copies every collection from the configured store into the
// store described by the flags.
func runMigrate(ctx context.Context, src sdk.Backend, srcOpts sdk.Options, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	to := fs.String("to", "", "target backend: embedded, sql or remote")
	dataDir := fs.String("data-dir", srcOpts.DataDir, "embedded target directory")
	driver := fs.String("driver", srcOpts.DBDriver, "sql target driver")
	dsn := fs.String("dsn", srcOpts.DBDSN, "sql target dsn")
	addr := fs.String("addr", srcOpts.Addr, "remote target address")
	if err := fs.Parse(args); err != nil {
		return usage("%v", err)
	}
	if *to == "" {
		return usage("staffing migrate -to <embedded|sql|remote>")
	}

	dstOpts := srcOpts
	dstOpts.Backend = *to
	dstOpts.DataDir = *dataDir
	dstOpts.DBDriver = *driver
	dstOpts.DBDSN = *dsn
	dstOpts.Addr = *addr
	if sameStore(srcOpts, dstOpts) {
		return errors.New("source and target are the same store")
	}

	dst, err := sdk.Open(ctx, dstOpts)
	if err != nil {
		return err
	}
	defer dst.Close()

	n, err := engine.Migrate(ctx, src, dst, schema.Collections...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "migrated %d records to %s\n", n, *to)
	return nil
}

func sameStore(a, b sdk.Options) bool {
	if a.Backend != b.Backend {
		return false
	}
	switch a.Backend {
	case sdk.BackendSQL:
		return a.DBDriver == b.DBDriver && a.DBDSN == b.DBDSN
	case sdk.BackendRemote:
		return a.Addr == b.Addr
	default:
		return a.DataDir == b.DataDir
	}
}

func runSeed(ctx context.Context, store recordstore.Store, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	staff := fs.Int("staff", 10, "staff members")
	apps := fs.Int("applications", 20, "applications")
	days := fs.Int("days", 14, "days of past attendance")
	seedVal := fs.Int64("seed", time.Now().UnixNano(), "random seed")
	if err := fs.Parse(args); err != nil {
		return usage("%v", err)
	}

	res, err := seed.Run(ctx, store, seed.Options{
		Staff:        *staff,
		Applications: *apps,
		Days:         *days,
		Seed:         *seedVal,
		Location:     cfg.Location,
	})
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func runImportStaff(ctx context.Context, store recordstore.Store, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usage("staffing import-staff <roster.xlsx|roster.xls>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := roster.ReadRows(args[0], f)
	if err != nil {
		return err
	}
	staff, problems, err := roster.Parse(rows)
	if err != nil {
		return err
	}
	res, err := roster.Import(ctx, store, staff)
	if err != nil {
		return err
	}
	return printJSON(out, struct {
		roster.Result
		Skipped []roster.RowError `json:"skipped,omitempty"`
	}{res, problems})
}

func runToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.String("subject", "admin", "token subject")
	role := fs.String("role", api.RoleAdmin, "role claim")
	ttl := fs.Duration("ttl", 12*time.Hour, "lifetime")
	if err := fs.Parse(args); err != nil {
		return usage("%v", err)
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("%s_JWT_SECRET is not set", config.EnvPrefix)
	}
	tok, err := api.IssueToken([]byte(cfg.JWTSecret), *subject, *role, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}

func runPing(ctx context.Context, store sdk.Backend, out io.Writer) error {
	if p, ok := store.(sdk.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(out, "PONG")
	return err
}
