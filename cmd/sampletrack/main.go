// Command sampletrack runs maintenance tasks against the sample quantity
// engine: schema migration, inventory verification and history export.
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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sampletrack/internal/blob"
	"sampletrack/internal/core"
	"sampletrack/internal/platform/config"
	"sampletrack/internal/platform/otel"
)

const serviceName = "sampletrack"

const usage = `usage: sampletrack <command> [flags]

commands:
  migrate          apply schema migrations to the configured store
  verify           check inventory invariants, exit 1 on violations
  export-history   archive history entries to the configured blob store

configuration is read from SAMPLETRACK_* environment variables.
`

var exitFunc = os.Exit

func main() {
	exitFunc(cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "-h", "--help", "help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	case "migrate", "verify", "export-history":
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	var code int
	switch args[0] {
	case "migrate":
		code, err = runMigrate(ctx, cfg, logger, args[1:], stdout, stderr)
	case "verify":
		code, err = runVerify(ctx, cfg, logger, args[1:], stdout, stderr)
	case "export-history":
		code, err = runExportHistory(ctx, cfg, logger, args[1:], stdout, stderr)
	}
	if err != nil {
		logger.Error("command failed", "command", args[0], "error", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

// commonFlags are accepted by every command.
type commonFlags struct {
	metricsFile string
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := &commonFlags{}
	fs.StringVar(&common.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file on exit")
	return fs, common
}

func runMigrate(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) (int, error) {
	fs, common := newFlagSet("migrate", stderr)
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}
	a, err := openApp(ctx, cfg, logger, common, false)
	if err != nil {
		return 1, err
	}
	if err := a.Close(ctx); err != nil {
		return 1, err
	}
	logger.Info("schema up to date", "driver", cfg.StorageDriver)
	_, err = fmt.Fprintf(stdout, "%s schema up to date\n", cfg.StorageDriver)
	return 0, err
}

func runVerify(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) (code int, err error) {
	fs, common := newFlagSet("verify", stderr)
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}
	a, err := openApp(ctx, cfg, logger, common, false)
	if err != nil {
		return 1, err
	}
	defer func() { err = errors.Join(err, a.Close(ctx)) }()

	res, err := a.svc.VerifyInventory(ctx)
	if err != nil {
		return 1, err
	}
	violations := res.Violations
	if violations == nil {
		violations = []core.Violation{}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Violations []core.Violation `json:"violations"`
	}{violations}); err != nil {
		return 1, err
	}
	if len(violations) > 0 {
		return 1, nil
	}
	return 0, nil
}

func runExportHistory(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) (code int, err error) {
	fs, common := newFlagSet("export-history", stderr)
	var (
		q        core.HistoryQuery
		from, to string
	)
	fs.StringVar(&q.ItemID, "item", "", "only entries of this item id")
	fs.StringVar(&q.TestID, "test", "", "only entries of this test id")
	fs.StringVar(&q.ContainerID, "container", "", "only entries of this container id")
	fs.StringVar(&from, "from", "", "inclusive lower bound, RFC 3339")
	fs.StringVar(&to, "to", "", "exclusive upper bound, RFC 3339")
	fs.IntVar(&q.Limit, "limit", 0, "maximum number of entries, 0 for all")
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}
	if q.From, err = parseTime("from", from); err != nil {
		return 2, err
	}
	if q.To, err = parseTime("to", to); err != nil {
		return 2, err
	}

	a, err := openApp(ctx, cfg, logger, common, true)
	if err != nil {
		return 1, err
	}
	defer func() { err = errors.Join(err, a.Close(ctx)) }()

	info, err := a.svc.ExportHistory(core.WithActor(ctx, "sampletrack-cli"), q)
	if err != nil {
		return 1, err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return 0, enc.Encode(info)
}

func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -%s: %w", field, err)
	}
	return t.UTC(), nil
}

// app bundles the service with the resources it holds open.
type app struct {
	svc         *core.Service
	store       core.PersistentStore
	registry    *prometheus.Registry
	metricsFile string
	shutdown    func(context.Context) error
}

func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger, common *commonFlags, withBlobs bool) (*app, error) {
	shutdown, err := otel.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	registry := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("metrics: %w", err)
	}
	store, err := core.OpenPersistentStore(ctx, core.StorageConfig{
		Driver:      core.StorageDriver(cfg.StorageDriver),
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	}, core.NewDefaultRulesEngine())
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithTracer(core.NewOTelTracer(otel.Tracer(serviceName))),
		core.WithAuditRecorder(slogAuditRecorder{logger: logger}),
	}
	if withBlobs {
		blobs, err := blob.Open(ctx, blob.Config{
			Driver: blob.Driver(cfg.Blob.Driver),
			FSRoot: cfg.Blob.FSRoot,
			S3: blob.S3Config{
				Bucket:          cfg.Blob.S3Bucket,
				Region:          cfg.Blob.S3Region,
				Endpoint:        cfg.Blob.S3Endpoint,
				AccessKeyID:     cfg.Blob.S3AccessKeyID,
				SecretAccessKey: cfg.Blob.S3SecretAccessKey,
				PathStyle:       cfg.Blob.S3PathStyle,
			},
		})
		if err != nil {
			_ = core.CloseStore(store)
			_ = shutdown(ctx)
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		opts = append(opts, core.WithBlobStore(blobs))
	}

	return &app{
		svc:         core.NewService(store, opts...),
		store:       store,
		registry:    registry,
		metricsFile: common.metricsFile,
		shutdown:    shutdown,
	}, nil
}

// Close releases the store, flushes traces and writes the metrics file.
func (a *app) Close(ctx context.Context) error {
	errs := []error{core.CloseStore(a.store), a.shutdown(ctx)}
	if a.metricsFile != "" {
		errs = append(errs, prometheus.WriteToTextfile(a.metricsFile, a.registry))
	}
	return errors.Join(errs...)
}

// slogAuditRecorder writes one structured line per engine operation.
type slogAuditRecorder struct {
	logger *slog.Logger
}

func (a slogAuditRecorder) Record(ctx context.Context, entry core.AuditEntry) {
	attrs := []slog.Attr{
		slog.String("operation", entry.Operation),
		slog.String("actor", entry.Actor),
		slog.String("status", string(entry.Status)),
		slog.Duration("duration", entry.Duration),
	}
	level := slog.LevelDebug
	if entry.Status == core.AuditStatusError {
		level = slog.LevelInfo
		attrs = append(attrs, slog.String("code", entry.Code), slog.String("error", entry.Error))
	}
	a.logger.LogAttrs(ctx, level, "audit", attrs...)
}
