// Package archive exports the daily documents of a calendar day to blob
// storage as JSON artifacts, asynchronously and with an audit trail.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"homeworkcore/internal/blob"
	"homeworkcore/pkg/domain"

	"github.com/oklog/ulid/v2"
)

// Status describes the lifecycle stage of an archive request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored day-document export.
type Artifact struct {
	Key         string    `json:"key"`
	KidName     string    `json:"kidName"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an archive request and its resulting artifacts.
type Record struct {
	ID          string     `json:"id"`
	Date        string     `json:"date"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	cp := r
	cp.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// Input represents an enqueue request for the worker.
type Input struct {
	Date        string
	RequestedBy string
}

// AuditLogger records archive audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for archive runs.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Date       string    `json:"date"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Lister is the read-only store surface the worker consumes.
type Lister interface {
	ListDailyByDate(ctx context.Context, date string) ([]domain.DailyDocument, error)
}

type archiveTask struct {
	id    string
	input Input
}

// Worker executes day archives asynchronously.
type Worker struct {
	docs  Lister
	store blob.Store
	audit AuditLogger

	queue chan archiveTask
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs an archive worker over the given document and blob stores.
func NewWorker(docs Lister, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		docs:   docs,
		store:  store,
		audit:  audit,
		queue:  make(chan archiveTask, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing archive requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

func newID() string { return ulid.Make().String() }

// Enqueue schedules an archive job for the given date and returns the queued
// record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.docs == nil || w.store == nil {
		return Record{}, fmt.Errorf("archive worker not configured")
	}
	date := strings.TrimSpace(input.Date)
	if date == "" {
		return Record{}, fmt.Errorf("date required")
	}
	if _, err := time.Parse(domain.DateFormat, date); err != nil {
		return Record{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		Date:        date,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, input, StatusQueued)

	select {
	case w.queue <- archiveTask{id: id, input: input}:
	default:
		return Record{}, fmt.Errorf("archive queue full")
	}

	return queuedSnapshot, nil
}

// Job returns a snapshot of the archive record.
func (w *Worker) Job(id string) (Record, bool) {
	w.mu.RLock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.RUnlock()
		return Record{}, false
	}
	snapshot := record.copy()
	w.mu.RUnlock()
	return snapshot, true
}

func (w *Worker) process(task archiveTask) {
	w.updateStatus(task.id, StatusRunning, "")

	docs, err := w.docs.ListDailyByDate(w.ctx, task.input.Date)
	if err != nil {
		w.fail(task.id, task.input, fmt.Sprintf("list daily documents: %v", err))
		return
	}

	artifacts := make([]Artifact, 0, len(docs))
	for _, doc := range docs {
		payload, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			w.fail(task.id, task.input, fmt.Sprintf("encode %s: %v", doc.ID, err))
			return
		}
		key := fmt.Sprintf("archives/%s/%s.json", doc.Date, doc.KidName)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"kid": doc.KidName, "date": doc.Date},
		})
		if err != nil {
			w.fail(task.id, task.input, fmt.Sprintf("store artifact %s: %v", key, err))
			return
		}
		artifacts = append(artifacts, Artifact{
			Key:         info.Key,
			KidName:     doc.KidName,
			ContentType: info.ContentType,
			SizeBytes:   info.Size,
			URL:         info.URL,
			CreatedAt:   info.LastModified,
		})
	}

	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[task.id]; ok {
		record.Status = StatusSucceeded
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()

	w.recordAudit(w.ctx, task.input, StatusSucceeded)
}

func (w *Worker) fail(id string, input Input, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()

	w.recordAudit(w.ctx, input, StatusFailed)
}

func (w *Worker) updateStatus(id string, status Status, errMsg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	record, ok := w.jobs[id]
	if !ok {
		return
	}
	record.Status = status
	record.Error = errMsg
	record.UpdatedAt = time.Now().UTC()
}

func (w *Worker) recordAudit(ctx context.Context, input Input, status Status) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         newID(),
		Action:     "daily_archive",
		Actor:      input.RequestedBy,
		Date:       input.Date,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	})
}
