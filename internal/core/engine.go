// Package core implements the daily-document reconciliation engine: initial
// materialization of a day's checklist from a kid's template, additive-only
// synchronization against later template edits with tombstone tracking, and
// the idempotent line-level mutation operators.
package core

import (
	"context"
	"fmt"
	"time"

	"homeworkcore/pkg/domain"

	"github.com/oklog/ulid/v2"
)

// TaskInput carries the caller-supplied fields of an upsert. ID is optional:
// when set and matching an existing line, the line is edited in place; when
// empty or unmatched, a new line is appended.
type TaskInput struct {
	ID          string
	Subject     string
	Book        string
	Description string
}

// Engine reconciles daily documents against kid templates through an abstract
// document store. It holds no document state of its own; every operation is a
// read-modify-write against the store.
type Engine struct {
	store    domain.DocumentStore
	defaults map[string]domain.Template
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	nowFn    func() time.Time
	newID    func() string
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger installs a logger for best-effort failure reporting.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetricsRecorder installs a metrics recorder observing every operation.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer installs a tracer opening one span per operation.
func WithTracer(t Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithDefaultTemplates replaces the built-in fallback templates.
func WithDefaultTemplates(templates map[string]domain.Template) Option {
	return func(e *Engine) {
		e.defaults = templates
	}
}

// WithNowFunc overrides the wall clock. Intended for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.nowFn = now
		}
	}
}

// WithIDFunc overrides generated line id synthesis. Intended for tests.
func WithIDFunc(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine constructs an engine over the given document store.
func NewEngine(store domain.DocumentStore, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		defaults: DefaultTemplates(),
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		nowFn:    func() time.Time { return time.Now().UTC() },
		newID:    func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying document store.
func (e *Engine) Store() domain.DocumentStore { return e.store }

// instrument opens a span and returns a completion callback recording the
// operation outcome.
func (e *Engine) instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	start := e.nowFn()
	ctx, span := e.tracer.Start(ctx, operation)
	return ctx, func(err error) {
		e.metrics.Observe(ctx, operation, err == nil, e.nowFn().Sub(start))
		span.End(err)
	}
}

// resolveTemplate looks up the kid's stored template, falling back to the
// configured defaults. Store errors propagate; a missing template is not an
// error.
func (e *Engine) resolveTemplate(ctx context.Context, kid string) (domain.Template, bool, error) {
	tpl, ok, err := e.store.GetTemplate(ctx, kid)
	if err != nil {
		return domain.Template{}, false, fmt.Errorf("get template %q: %w", kid, err)
	}
	if ok {
		return tpl, true, nil
	}
	if fallback, ok := e.defaults[kid]; ok {
		return fallback.Clone(), true, nil
	}
	return domain.Template{}, false, nil
}

// EnsureDailyDocument returns the daily document for (date, kid), creating it
// from the kid's template on first access. For an existing document a
// template sync pass is attempted first; sync failures are logged and
// swallowed so a stale-but-present document is always preferred over failing
// the caller.
func (e *Engine) EnsureDailyDocument(ctx context.Context, date, kid string) (domain.DailyDocument, error) {
	ctx, done := e.instrument(ctx, "ensure_daily_document")
	doc, err := e.ensureDailyDocument(ctx, date, kid)
	done(err)
	return doc, err
}

func (e *Engine) ensureDailyDocument(ctx context.Context, date, kid string) (domain.DailyDocument, error) {
	key := domain.DailyKey{Date: date, Kid: kid}
	doc, ok, err := e.store.GetDaily(ctx, key)
	if err != nil {
		return domain.DailyDocument{}, fmt.Errorf("get daily %q: %w", key, err)
	}
	if ok {
		if syncErr := e.syncWithTemplate(ctx, date, kid); syncErr != nil {
			// Best-effort catch-up: prefer returning the stale read over failing.
			e.logger.Warn("template sync failed, returning stale document", "key", key.String(), "error", syncErr)
			return doc, nil
		}
		synced, stillOK, readErr := e.store.GetDaily(ctx, key)
		if readErr != nil || !stillOK {
			e.logger.Warn("re-read after template sync failed, returning pre-sync document", "key", key.String(), "error", readErr)
			return doc, nil
		}
		return synced, nil
	}

	tpl, _, err := e.resolveTemplate(ctx, kid)
	if err != nil {
		return domain.DailyDocument{}, err
	}
	tasks := make([]domain.Task, 0, len(tpl.Tasks))
	for i, t := range tpl.Tasks {
		tasks = append(tasks, domain.Task{
			ID:      fmt.Sprintf("%d-%s-%s", i+1, t.Subject, t.Book),
			Subject: t.Subject,
			Book:    t.Book,
		})
	}
	now := e.nowFn()
	doc = domain.DailyDocument{
		ID:          key.String(),
		KidName:     kid,
		Date:        date,
		Tasks:       tasks,
		RemovedKeys: domain.NewTombstoneSet(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.PutDaily(ctx, doc); err != nil {
		return domain.DailyDocument{}, fmt.Errorf("put daily %q: %w", key, err)
	}
	return doc, nil
}

// SyncWithTemplate appends template entries missing from an existing daily
// document, skipping tombstoned keys. It never removes or mutates existing
// lines, never creates a document, and leaves the document untouched when
// nothing is pending.
func (e *Engine) SyncWithTemplate(ctx context.Context, date, kid string) error {
	ctx, done := e.instrument(ctx, "sync_with_template")
	err := e.syncWithTemplate(ctx, date, kid)
	done(err)
	return err
}

func (e *Engine) syncWithTemplate(ctx context.Context, date, kid string) error {
	key := domain.DailyKey{Date: date, Kid: kid}
	doc, ok, err := e.store.GetDaily(ctx, key)
	if err != nil {
		return fmt.Errorf("get daily %q: %w", key, err)
	}
	if !ok {
		return nil
	}
	tpl, ok, err := e.resolveTemplate(ctx, kid)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	present := doc.TaskKeys()
	var additions []domain.Task
	for idx, t := range tpl.Tasks {
		tk := t.Key()
		if doc.RemovedKeys.Has(tk) {
			// honor deletions
			continue
		}
		if _, exists := present[tk]; exists {
			continue
		}
		additions = append(additions, domain.Task{
			ID:      fmt.Sprintf("%s-%d", e.newID(), idx),
			Subject: t.Subject,
			Book:    t.Book,
		})
	}
	if len(additions) == 0 {
		return nil
	}

	tasks := append(append([]domain.Task(nil), doc.Tasks...), additions...)
	now := e.nowFn()
	if err := e.store.UpdateDaily(ctx, key, domain.DailyPatch{Tasks: &tasks, UpdatedAt: &now}); err != nil {
		return fmt.Errorf("update daily %q: %w", key, err)
	}
	return nil
}

// ToggleCompleted sets the completed flag on the matching line. Unknown task
// ids and missing documents are silent no-ops.
func (e *Engine) ToggleCompleted(ctx context.Context, date, kid, taskID string, completed bool) error {
	ctx, done := e.instrument(ctx, "toggle_completed")
	err := e.toggleCompleted(ctx, date, kid, taskID, completed)
	done(err)
	return err
}

func (e *Engine) toggleCompleted(ctx context.Context, date, kid, taskID string, completed bool) error {
	key := domain.DailyKey{Date: date, Kid: kid}
	doc, ok, err := e.store.GetDaily(ctx, key)
	if err != nil {
		return fmt.Errorf("get daily %q: %w", key, err)
	}
	if !ok {
		e.logger.Debug("toggle on missing document", "key", key.String(), "task", taskID)
		return nil
	}

	changed := false
	tasks := append([]domain.Task(nil), doc.Tasks...)
	for i := range tasks {
		if tasks[i].ID == taskID && tasks[i].Completed != completed {
			tasks[i].Completed = completed
			changed = true
		}
	}
	if !changed {
		return nil
	}
	now := e.nowFn()
	if err := e.store.UpdateDaily(ctx, key, domain.DailyPatch{Tasks: &tasks, UpdatedAt: &now}); err != nil {
		return fmt.Errorf("update daily %q: %w", key, err)
	}
	return nil
}

// UpsertTask edits a line in place when input.ID matches an existing line,
// preserving its completed flag, or appends a fresh incomplete line
// otherwise. A tombstone matching the written line's template key is cleared
// so tasks and removedKeys stay disjoint.
func (e *Engine) UpsertTask(ctx context.Context, date, kid string, input TaskInput) error {
	ctx, done := e.instrument(ctx, "upsert_task")
	err := e.upsertTask(ctx, date, kid, input)
	done(err)
	return err
}

func (e *Engine) upsertTask(ctx context.Context, date, kid string, input TaskInput) error {
	key := domain.DailyKey{Date: date, Kid: kid}
	doc, ok, err := e.store.GetDaily(ctx, key)
	if err != nil {
		return fmt.Errorf("get daily %q: %w", key, err)
	}
	if !ok {
		e.logger.Debug("upsert on missing document", "key", key.String())
		return nil
	}

	tasks := append([]domain.Task(nil), doc.Tasks...)
	matched := false
	if input.ID != "" {
		for i := range tasks {
			if tasks[i].ID == input.ID {
				// Editing text must not silently flip completion state.
				tasks[i].Subject = input.Subject
				tasks[i].Book = input.Book
				tasks[i].Description = input.Description
				matched = true
				break
			}
		}
	}
	if !matched {
		tasks = append(tasks, domain.Task{
			ID:          e.newID(),
			Subject:     input.Subject,
			Book:        input.Book,
			Description: input.Description,
		})
	}

	now := e.nowFn()
	patch := domain.DailyPatch{Tasks: &tasks, UpdatedAt: &now}
	writtenKey := domain.TemplateKeyFor(input.Subject, input.Book)
	if doc.RemovedKeys.Has(writtenKey) {
		removed := doc.RemovedKeys.Clone()
		removed.Remove(writtenKey)
		patch.RemovedKeys = &removed
	}
	if err := e.store.UpdateDaily(ctx, key, patch); err != nil {
		return fmt.Errorf("update daily %q: %w", key, err)
	}
	return nil
}

// DeleteLine removes the line with the given id and tombstones its template
// key so a later sync cannot resurrect it. Unknown ids and missing documents
// are silent no-ops.
func (e *Engine) DeleteLine(ctx context.Context, date, kid, taskID string) error {
	ctx, done := e.instrument(ctx, "delete_line")
	err := e.deleteLine(ctx, date, kid, taskID)
	done(err)
	return err
}

func (e *Engine) deleteLine(ctx context.Context, date, kid, taskID string) error {
	key := domain.DailyKey{Date: date, Kid: kid}
	doc, ok, err := e.store.GetDaily(ctx, key)
	if err != nil {
		return fmt.Errorf("get daily %q: %w", key, err)
	}
	if !ok {
		e.logger.Debug("delete on missing document", "key", key.String(), "task", taskID)
		return nil
	}

	target, found := doc.FindTask(taskID)
	if !found {
		return nil
	}
	tasks := make([]domain.Task, 0, len(doc.Tasks)-1)
	for _, t := range doc.Tasks {
		if t.ID != taskID {
			tasks = append(tasks, t)
		}
	}
	removed := doc.RemovedKeys.Clone()
	removed.Add(target.TemplateKey())

	now := e.nowFn()
	if err := e.store.UpdateDaily(ctx, key, domain.DailyPatch{Tasks: &tasks, RemovedKeys: &removed, UpdatedAt: &now}); err != nil {
		return fmt.Errorf("update daily %q: %w", key, err)
	}
	return nil
}

// DeleteSubject removes every line whose subject matches and tombstones each
// removed line's template key. A subject with no matching lines is a no-op.
func (e *Engine) DeleteSubject(ctx context.Context, date, kid, subject string) error {
	ctx, done := e.instrument(ctx, "delete_subject")
	err := e.deleteSubject(ctx, date, kid, subject)
	done(err)
	return err
}

func (e *Engine) deleteSubject(ctx context.Context, date, kid, subject string) error {
	key := domain.DailyKey{Date: date, Kid: kid}
	doc, ok, err := e.store.GetDaily(ctx, key)
	if err != nil {
		return fmt.Errorf("get daily %q: %w", key, err)
	}
	if !ok {
		e.logger.Debug("delete subject on missing document", "key", key.String(), "subject", subject)
		return nil
	}

	dropped := domain.NewTombstoneSet()
	tasks := make([]domain.Task, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if t.Subject == subject {
			dropped.Add(t.TemplateKey())
			continue
		}
		tasks = append(tasks, t)
	}
	if len(dropped) == 0 {
		return nil
	}
	removed := doc.RemovedKeys.Union(dropped)

	now := e.nowFn()
	if err := e.store.UpdateDaily(ctx, key, domain.DailyPatch{Tasks: &tasks, RemovedKeys: &removed, UpdatedAt: &now}); err != nil {
		return fmt.Errorf("update daily %q: %w", key, err)
	}
	return nil
}

// Subscribe registers fn for full-document change notifications on (date, kid).
func (e *Engine) Subscribe(ctx context.Context, date, kid string, fn domain.SubscribeFunc) (func(), error) {
	return e.store.SubscribeDaily(ctx, domain.DailyKey{Date: date, Kid: kid}, fn)
}

// Template resolves the effective template for kid (stored, else default).
func (e *Engine) Template(ctx context.Context, kid string) (domain.Template, bool, error) {
	return e.resolveTemplate(ctx, kid)
}

// SeedDefaultTemplates writes the built-in default template for each named kid
// that has no stored template yet, returning the number seeded.
func (e *Engine) SeedDefaultTemplates(ctx context.Context, kids ...string) (int, error) {
	seeded := 0
	for _, kid := range kids {
		_, ok, err := e.store.GetTemplate(ctx, kid)
		if err != nil {
			return seeded, fmt.Errorf("get template %q: %w", kid, err)
		}
		if ok {
			continue
		}
		tpl, ok := e.defaults[kid]
		if !ok {
			continue
		}
		if err := e.store.PutTemplate(ctx, tpl.Clone()); err != nil {
			return seeded, fmt.Errorf("put template %q: %w", kid, err)
		}
		e.logger.Info("seeded default template", "kid", kid, "entries", len(tpl.Tasks))
		seeded++
	}
	return seeded, nil
}
