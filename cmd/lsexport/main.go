package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edupulse/lsexport/internal/api"
	"github.com/edupulse/lsexport/internal/config"
	"github.com/edupulse/lsexport/internal/dedup"
	"github.com/edupulse/lsexport/internal/enrich"
	"github.com/edupulse/lsexport/internal/events"
	"github.com/edupulse/lsexport/internal/export"
	"github.com/edupulse/lsexport/internal/langsmith"
	"github.com/edupulse/lsexport/internal/record"
	"github.com/edupulse/lsexport/internal/sink"
)

// outputs selects which sinks receive the export. Local JSON files are
// always written.
type outputs struct {
	S3       bool
	Mongo    bool
	Postgres bool
}

func main() {
	var (
		outputArg = flag.String("output", "json", "comma-separated outputs: json, s3, mongo, postgres")
		hours     = flag.Float64("hours", 0, "time window in hours (overrides LS_HOURS_WINDOW)")
		debug     = flag.Int("debug", 0, "debug mode: cap the export at N surviving runs")
		logLevel  = flag.String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
		serve     = flag.Bool("serve", false, "run as a daemon, exporting on an interval with a status API")
		interval  = flag.Duration("interval", time.Hour, "export interval in -serve mode")
	)
	flag.Parse()

	cfg := config.Load()
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *hours > 0 {
		cfg.HoursWindow = *hours
	}
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(2)
	}

	out := parseOutputs(*outputArg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event publisher (optional)
	var pub events.Publisher = events.Nop{}
	if cfg.NatsURL != "" {
		natsClient, err := events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
		pub = natsClient
	}

	slog.Info("starting LangSmith export",
		"sessions", cfg.SessionIDs,
		"filter", cfg.FilterName,
		"hours", cfg.HoursWindow,
		"s3", out.S3,
		"mongo", out.Mongo,
		"postgres", out.Postgres,
		"serve", *serve,
	)

	if !*serve {
		if _, err := runExport(ctx, cfg, out, pub, *debug); err != nil {
			slog.Error("export failed", "error", err)
			os.Exit(1)
		}
		slog.Info("export completed successfully")
		return
	}

	// Daemon mode: export on an interval, expose status over HTTP.
	srv := api.NewServer(cfg.Port)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		summary, err := runExport(ctx, cfg, out, pub, *debug)
		srv.RecordResult(summary, err)
		if err != nil {
			slog.Error("export failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return
		case <-ticker.C:
		}
	}
}

// runExport performs one full export: paginate, dedup, enrich, write files,
// then fan out to the optional sinks. A sink failure is a partial failure:
// it is logged and the remaining sinks still run.
func runExport(ctx context.Context, cfg config.Config, out outputs, pub events.Publisher, debugLimit int) (*export.Summary, error) {
	logger := slog.Default()

	endTime := time.Now().UTC()
	query := langsmith.Query{
		SessionIDs: cfg.SessionIDs,
		FilterName: cfg.FilterName,
		Limit:      cfg.PageLimit,
		StartTime:  endTime.Add(-time.Duration(cfg.HoursWindow * float64(time.Hour))),
		EndTime:    endTime,
	}

	client := langsmith.NewClient(cfg.APIKey, logger)
	enricher := enrich.New(logger, pub)
	exporter := export.New(client, dedup.New(enricher, pub, logger), pub, logger)
	exporter.DebugLimit = debugLimit

	survivors, summary, err := exporter.Run(ctx, query)
	if err != nil {
		return nil, err
	}

	writer := sink.NewFileWriter(cfg.OutputDir, cfg.FileTimezone, logger)
	fullPath, summaryPath, err := writer.WriteRuns(survivors)
	if err != nil {
		return summary, fmt.Errorf("write export files: %w", err)
	}

	if out.S3 {
		uploadToS3(ctx, cfg, fullPath, summaryPath)
	}
	if out.Mongo {
		uploadToMongo(ctx, cfg, survivors)
	}
	if out.Postgres {
		upsertToPostgres(ctx, cfg, survivors)
	}

	summary.Stats.Log(logger)
	return summary, nil
}

func uploadToS3(ctx context.Context, cfg config.Config, fullPath, summaryPath string) {
	if cfg.S3Bucket == "" {
		slog.Info("no S3 bucket configured, files saved locally only")
		return
	}

	uploader, err := sink.NewS3Uploader(ctx, cfg.S3Bucket, cfg.AWSRegion, slog.Default())
	if err != nil {
		slog.Error("failed to build S3 uploader", "error", err)
		return
	}

	uploaded := 0
	for _, path := range []string{fullPath, summaryPath} {
		if _, err := uploader.UploadFile(ctx, path); err != nil {
			slog.Error("failed to upload to S3", "path", path, "error", err)
			continue
		}
		uploaded++
	}

	switch uploaded {
	case 2:
		slog.Info("both files uploaded to S3")
	case 1:
		slog.Warn("only one file uploaded to S3, local files saved")
	default:
		slog.Warn("S3 upload failed for both files, local files saved")
	}
}

func uploadToMongo(ctx context.Context, cfg config.Config, survivors []record.Run) {
	if cfg.MongoURI == "" {
		slog.Info("no MongoDB connection configured, skipping upload")
		return
	}

	uploader, err := sink.NewMongoUploader(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, slog.Default())
	if err != nil {
		slog.Error("failed to connect to MongoDB", "error", err)
		return
	}
	defer uploader.Close(ctx)

	uploader.Upload(ctx, survivors)
}

func upsertToPostgres(ctx context.Context, cfg config.Config, survivors []record.Run) {
	if cfg.DatabaseURL == "" {
		slog.Info("no DATABASE_URL configured, skipping Postgres upsert")
		return
	}

	store, err := sink.NewPostgresStore(ctx, cfg.DatabaseURL, slog.Default())
	if err != nil {
		slog.Error("failed to connect to Postgres", "error", err)
		return
	}
	defer store.Close()

	store.Upsert(ctx, survivors)
}

// parseOutputs interprets the -output flag. JSON files are always written;
// unknown options are ignored with a warning.
func parseOutputs(arg string) outputs {
	var out outputs
	for _, opt := range strings.Split(arg, ",") {
		switch strings.ToLower(strings.TrimSpace(opt)) {
		case "", "json":
			// Always on.
		case "s3":
			out.S3 = true
		case "mongo":
			out.Mongo = true
		case "postgres":
			out.Postgres = true
		default:
			slog.Warn("unknown output option, ignoring", "option", opt)
		}
	}
	return out
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
