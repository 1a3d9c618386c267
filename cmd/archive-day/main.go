// Command archive-day exports every daily checklist document for a calendar
// day into the configured blob store as JSON artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"homeworkcore/internal/archive"
	"homeworkcore/internal/blob"
	"homeworkcore/internal/config"
	"homeworkcore/internal/core"
	"homeworkcore/pkg/domain"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("archive-day", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to TOML config file (optional)")
	date := fs.String("date", time.Now().UTC().Format(domain.DateFormat), "day to archive (YYYY-MM-DD)")
	actor := fs.String("actor", "archive-day", "requester recorded in the audit trail")
	timeout := fs.Duration("timeout", 5*time.Minute, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "archive-day: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := core.OpenDocumentStoreConfig(core.StorageConfig{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		fmt.Fprintf(stderr, "archive-day: open store: %v\n", err)
		return 1
	}
	defer closeStore(store, stderr)

	blobs, err := blob.OpenConfig(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    cfg.Blob.S3Bucket,
			Region:    cfg.Blob.S3Region,
			Endpoint:  cfg.Blob.S3URL,
			PathStyle: cfg.Blob.PathStyle,
		},
	})
	if err != nil {
		fmt.Fprintf(stderr, "archive-day: open blob store: %v\n", err)
		return 1
	}

	logger := core.NewZapLogger(nil)
	worker := archive.NewWorker(store, blobs, auditLog{log: logger})
	worker.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := worker.Stop(stopCtx); err != nil {
			fmt.Fprintf(stderr, "archive-day: stop worker: %v\n", err)
		}
	}()

	record, err := worker.Enqueue(ctx, archive.Input{Date: *date, RequestedBy: *actor})
	if err != nil {
		fmt.Fprintf(stderr, "archive-day: %v\n", err)
		return 1
	}

	final, err := waitForCompletion(ctx, worker, record.ID)
	if err != nil {
		fmt.Fprintf(stderr, "archive-day: %v\n", err)
		return 1
	}
	if final.Status == archive.StatusFailed {
		fmt.Fprintf(stderr, "archive-day: %s\n", final.Error)
		return 1
	}
	for _, artifact := range final.Artifacts {
		fmt.Fprintf(stdout, "%s\t%d bytes\n", artifact.Key, artifact.SizeBytes)
	}
	fmt.Fprintf(stdout, "archived %d document(s) for %s\n", len(final.Artifacts), *date)
	return 0
}

func waitForCompletion(ctx context.Context, worker *archive.Worker, id string) (archive.Record, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		record, ok := worker.Job(id)
		if !ok {
			return archive.Record{}, fmt.Errorf("archive job %s lost", id)
		}
		if record.Status == archive.StatusSucceeded || record.Status == archive.StatusFailed {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return archive.Record{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

type auditLog struct{ log core.Logger }

func (a auditLog) Record(_ context.Context, entry archive.AuditEntry) {
	a.log.Info("archive audit",
		"action", entry.Action,
		"date", entry.Date,
		"status", string(entry.Status),
		"actor", entry.Actor,
	)
}

func closeStore(store any, stderr io.Writer) {
	type closer interface{ Close() error }
	if c, ok := store.(closer); ok {
		if err := c.Close(); err != nil {
			fmt.Fprintf(stderr, "archive-day: close store: %v\n", err)
		}
	}
}
