package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"homeworkcore/internal/infra/persistence/memory"
	"homeworkcore/pkg/domain"

	"github.com/google/go-cmp/cmp"
)

const (
	testDate = "2026-09-01"
	testKid  = "Hazel"
)

// testClock hands out strictly increasing timestamps.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	seq := 0
	base := []Option{
		WithNowFunc(newTestClock().Now),
		WithIDFunc(func() string {
			seq++
			return fmt.Sprintf("gen-%03d", seq)
		}),
	}
	return NewEngine(store, append(base, opts...)...), store
}

func putTemplate(t *testing.T, store *memory.Store, kid string, entries ...domain.TemplateTask) {
	t.Helper()
	if err := store.PutTemplate(context.Background(), domain.Template{KidName: kid, Tasks: entries}); err != nil {
		t.Fatalf("put template: %v", err)
	}
}

func TestEnsureCreatesFromTemplateWithOrdinalIDs(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid,
		domain.TemplateTask{Subject: "English", Book: "Textbook"},
		domain.TemplateTask{Subject: "Maths", Book: "Notebook"},
	)

	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	want := []domain.Task{
		{ID: "1-English-Textbook", Subject: "English", Book: "Textbook"},
		{ID: "2-Maths-Notebook", Subject: "Maths", Book: "Notebook"},
	}
	if diff := cmp.Diff(want, doc.Tasks); diff != "" {
		t.Fatalf("materialized tasks mismatch (-want +got):\n%s", diff)
	}
	if doc.ID != testDate+"_"+testKid {
		t.Fatalf("document id %q", doc.ID)
	}
	if doc.CreatedAt.IsZero() || !doc.UpdatedAt.Equal(doc.CreatedAt) {
		t.Fatalf("fresh document timestamps: created=%v updated=%v", doc.CreatedAt, doc.UpdatedAt)
	}
	if len(doc.RemovedKeys) != 0 {
		t.Fatalf("fresh document should have no tombstones: %v", doc.RemovedKeys.Keys())
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})

	first, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if diff := cmp.Diff(first.Tasks, second.Tasks); diff != "" {
		t.Fatalf("repeat ensure changed tasks (-first +second):\n%s", diff)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("repeat ensure with no pending work should not bump updatedAt")
	}
}

func TestEnsureWithoutTemplateCreatesEmptyDocument(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, WithDefaultTemplates(nil))

	doc, err := engine.EnsureDailyDocument(ctx, testDate, "Nova")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(doc.Tasks) != 0 {
		t.Fatalf("no template should materialize an empty checklist, got %d tasks", len(doc.Tasks))
	}
}

func TestEnsureFallsBackToDefaultTemplates(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	doc, err := engine.EnsureDailyDocument(ctx, testDate, "Aiden")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	wantLen := len(DefaultTemplates()["Aiden"].Tasks)
	if len(doc.Tasks) != wantLen {
		t.Fatalf("expected %d default tasks, got %d", wantLen, len(doc.Tasks))
	}
	if doc.Tasks[0].ID != fmt.Sprintf("1-%s-%s", doc.Tasks[0].Subject, doc.Tasks[0].Book) {
		t.Fatalf("default materialization should use ordinal ids, got %q", doc.Tasks[0].ID)
	}
}

func TestSyncAppendsNewTemplateEntriesOnly(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})

	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := engine.ToggleCompleted(ctx, testDate, testKid, doc.Tasks[0].ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	putTemplate(t, store, testKid,
		domain.TemplateTask{Subject: "Maths", Book: "Notebook"},
		domain.TemplateTask{Subject: "GK", Book: "Textbook"},
	)
	synced, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure after template edit: %v", err)
	}
	if len(synced.Tasks) != 2 {
		t.Fatalf("expected appended entry, got %d tasks", len(synced.Tasks))
	}
	if !synced.Tasks[0].Completed {
		t.Fatalf("sync must not touch existing lines")
	}
	added := synced.Tasks[1]
	if added.TemplateKey() != "GK::Textbook" || added.Completed {
		t.Fatalf("unexpected appended line: %+v", added)
	}
	if added.ID == "" || added.ID == synced.Tasks[0].ID {
		t.Fatalf("appended line needs a fresh id, got %q", added.ID)
	}
}

func TestSyncNeverCreatesDocument(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})

	if err := engine.SyncWithTemplate(ctx, testDate, testKid); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok, _ := store.GetDaily(ctx, domain.DailyKey{Date: testDate, Kid: testKid}); ok {
		t.Fatalf("sync materialized a document")
	}
}

func TestDeletedLineStaysDeletedAcrossSync(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid,
		domain.TemplateTask{Subject: "Maths", Book: "Notebook"},
		domain.TemplateTask{Subject: "GK", Book: "Textbook"},
	)

	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := engine.DeleteLine(ctx, testDate, testKid, "2-GK-Textbook"); err != nil {
		t.Fatalf("delete line: %v", err)
	}

	after, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure after delete: %v", err)
	}
	if len(after.Tasks) != 1 || after.Tasks[0].TemplateKey() != "Maths::Notebook" {
		t.Fatalf("deleted line resurrected: %+v", after.Tasks)
	}
	if !after.RemovedKeys.Has("GK::Textbook") {
		t.Fatalf("tombstone missing: %v", after.RemovedKeys.Keys())
	}
	_ = doc
}

func TestToggleCompleted(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})
	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if err := engine.ToggleCompleted(ctx, testDate, testKid, doc.Tasks[0].ID, true); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	got, _, _ := store.GetDaily(ctx, doc.Key())
	if !got.Tasks[0].Completed {
		t.Fatalf("toggle did not set completed")
	}
	if !got.UpdatedAt.After(doc.UpdatedAt) {
		t.Fatalf("toggle should bump updatedAt")
	}

	// Same value again: no write, updatedAt untouched.
	if err := engine.ToggleCompleted(ctx, testDate, testKid, doc.Tasks[0].ID, true); err != nil {
		t.Fatalf("toggle same value: %v", err)
	}
	again, _, _ := store.GetDaily(ctx, doc.Key())
	if !again.UpdatedAt.Equal(got.UpdatedAt) {
		t.Fatalf("no-op toggle bumped updatedAt")
	}

	// Unknown id: no write.
	if err := engine.ToggleCompleted(ctx, testDate, testKid, "missing-id", false); err != nil {
		t.Fatalf("toggle unknown id: %v", err)
	}
	final, _, _ := store.GetDaily(ctx, doc.Key())
	if !final.UpdatedAt.Equal(got.UpdatedAt) || !final.Tasks[0].Completed {
		t.Fatalf("unknown-id toggle should leave document untouched")
	}
}

func TestUpsertEditPreservesCompletion(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})
	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	lineID := doc.Tasks[0].ID
	if err := engine.ToggleCompleted(ctx, testDate, testKid, lineID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	input := TaskInput{ID: lineID, Subject: "Maths", Book: "Notebook", Description: "pages 10-12"}
	if err := engine.UpsertTask(ctx, testDate, testKid, input); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, _, _ := store.GetDaily(ctx, doc.Key())
	if len(got.Tasks) != 1 {
		t.Fatalf("edit appended instead of replacing: %d tasks", len(got.Tasks))
	}
	line := got.Tasks[0]
	if line.Description != "pages 10-12" || !line.Completed || line.ID != lineID {
		t.Fatalf("edited line wrong: %+v", line)
	}
}

func TestUpsertAppendsWhenIDUnmatched(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})
	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if err := engine.UpsertTask(ctx, testDate, testKid, TaskInput{ID: "nope", Subject: "Art", Book: "Sketchbook"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, _ := store.GetDaily(ctx, doc.Key())
	if len(got.Tasks) != 2 {
		t.Fatalf("expected appended line, got %d tasks", len(got.Tasks))
	}
	added := got.Tasks[1]
	if added.ID == "" || added.ID == "nope" || added.Completed {
		t.Fatalf("appended line wrong: %+v", added)
	}
}

func TestUpsertClearsTombstoneForWrittenKey(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})
	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := engine.DeleteLine(ctx, testDate, testKid, doc.Tasks[0].ID); err != nil {
		t.Fatalf("delete line: %v", err)
	}

	if err := engine.UpsertTask(ctx, testDate, testKid, TaskInput{Subject: "Maths", Book: "Notebook"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, _ := store.GetDaily(ctx, doc.Key())
	if got.RemovedKeys.Has("Maths::Notebook") {
		t.Fatalf("writing a line back must clear its tombstone")
	}
	for _, task := range got.Tasks {
		if got.RemovedKeys.Has(task.TemplateKey()) {
			t.Fatalf("key %q present in both tasks and removedKeys", task.TemplateKey())
		}
	}
}

func TestDeleteSubjectTombstonesEveryVariant(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid,
		domain.TemplateTask{Subject: "English", Book: "Textbook"},
		domain.TemplateTask{Subject: "English", Book: "Dictation"},
		domain.TemplateTask{Subject: "Maths", Book: "Notebook"},
	)
	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if err := engine.DeleteSubject(ctx, testDate, testKid, "English"); err != nil {
		t.Fatalf("delete subject: %v", err)
	}
	got, _, _ := store.GetDaily(ctx, doc.Key())
	if len(got.Tasks) != 1 || got.Tasks[0].Subject != "Maths" {
		t.Fatalf("unexpected surviving tasks: %+v", got.Tasks)
	}
	for _, key := range []string{"English::Textbook", "English::Dictation"} {
		if !got.RemovedKeys.Has(key) {
			t.Fatalf("missing tombstone %q", key)
		}
	}

	// Subject with no lines: untouched document.
	if err := engine.DeleteSubject(ctx, testDate, testKid, "Science"); err != nil {
		t.Fatalf("delete absent subject: %v", err)
	}
	after, _, _ := store.GetDaily(ctx, doc.Key())
	if !after.UpdatedAt.Equal(got.UpdatedAt) {
		t.Fatalf("empty delete-subject bumped updatedAt")
	}

	// Deleted subject stays gone across a later sync.
	resynced, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure after delete: %v", err)
	}
	for _, task := range resynced.Tasks {
		if task.Subject == "English" {
			t.Fatalf("deleted subject resurrected: %+v", task)
		}
	}
}

func TestMutationsOnMissingDocumentAreSilentNoOps(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	key := domain.DailyKey{Date: testDate, Kid: testKid}

	if err := engine.ToggleCompleted(ctx, testDate, testKid, "1", true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := engine.UpsertTask(ctx, testDate, testKid, TaskInput{Subject: "Maths", Book: "Notebook"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := engine.DeleteLine(ctx, testDate, testKid, "1"); err != nil {
		t.Fatalf("delete line: %v", err)
	}
	if err := engine.DeleteSubject(ctx, testDate, testKid, "Maths"); err != nil {
		t.Fatalf("delete subject: %v", err)
	}
	if _, ok, _ := store.GetDaily(ctx, key); ok {
		t.Fatalf("mutation on missing document materialized it")
	}
}

func TestUpdatedAtStrictlyIncreasesAcrossMutations(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid,
		domain.TemplateTask{Subject: "English", Book: "Textbook"},
		domain.TemplateTask{Subject: "Maths", Book: "Notebook"},
	)
	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	key := doc.Key()
	last := doc.UpdatedAt

	steps := []func() error{
		func() error { return engine.ToggleCompleted(ctx, testDate, testKid, doc.Tasks[0].ID, true) },
		func() error {
			return engine.UpsertTask(ctx, testDate, testKid, TaskInput{Subject: "Art", Book: "Sketchbook"})
		},
		func() error { return engine.DeleteLine(ctx, testDate, testKid, doc.Tasks[1].ID) },
		func() error { return engine.DeleteSubject(ctx, testDate, testKid, "Art") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got, _, _ := store.GetDaily(ctx, key)
		if !got.UpdatedAt.After(last) {
			t.Fatalf("step %d did not advance updatedAt: %v -> %v", i, last, got.UpdatedAt)
		}
		last = got.UpdatedAt
	}
}

// failingTemplateStore wraps a store and fails template reads after the
// document exists, simulating a flaky backend during the sync pass.
type failingTemplateStore struct {
	domain.DocumentStore
	fail bool
}

func (s *failingTemplateStore) GetTemplate(ctx context.Context, kid string) (domain.Template, bool, error) {
	if s.fail {
		return domain.Template{}, false, errors.New("backend unavailable")
	}
	return s.DocumentStore.GetTemplate(ctx, kid)
}

func TestEnsureSwallowsSyncErrorsAndReturnsStaleDocument(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	wrapped := &failingTemplateStore{DocumentStore: inner}
	logger := &capturingLogger{}
	engine := NewEngine(wrapped, WithLogger(logger), WithNowFunc(newTestClock().Now))

	putTemplate(t, inner, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})
	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	wrapped.fail = true
	stale, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure with failing sync should not error: %v", err)
	}
	if diff := cmp.Diff(doc.Tasks, stale.Tasks); diff != "" {
		t.Fatalf("stale document mismatch (-want +got):\n%s", diff)
	}
	if len(logger.warns) == 0 {
		t.Fatalf("swallowed sync failure should be logged")
	}
}

// staleReadStore wraps a store and fails daily reads once the call count
// passes failAfter, simulating a backend dropping out mid-request.
type staleReadStore struct {
	domain.DocumentStore
	reads     int
	failAfter int
}

func (s *staleReadStore) GetDaily(ctx context.Context, key domain.DailyKey) (domain.DailyDocument, bool, error) {
	s.reads++
	if s.failAfter > 0 && s.reads > s.failAfter {
		return domain.DailyDocument{}, false, errors.New("backend unavailable")
	}
	return s.DocumentStore.GetDaily(ctx, key)
}

func TestEnsureLogsFailedReReadAfterSync(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	wrapped := &staleReadStore{DocumentStore: inner}
	logger := &capturingLogger{}
	engine := NewEngine(wrapped, WithLogger(logger), WithNowFunc(newTestClock().Now))

	putTemplate(t, inner, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})
	if _, err := engine.EnsureDailyDocument(ctx, testDate, testKid); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// Grow the template so the sync pass appends, then fail the re-read
	// that would otherwise pick up the appended task.
	putTemplate(t, inner, testKid,
		domain.TemplateTask{Subject: "Maths", Book: "Notebook"},
		domain.TemplateTask{Subject: "English", Book: "Textbook"},
	)
	wrapped.failAfter = wrapped.reads + 2

	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure with failing re-read should not error: %v", err)
	}
	if len(doc.Tasks) != 1 {
		t.Fatalf("expected the pre-sync document, got %d tasks", len(doc.Tasks))
	}
	if len(logger.warns) != 1 {
		t.Fatalf("failed re-read should be logged, got %v", logger.warns)
	}

	wrapped.failAfter = 0
	stored, ok, err := inner.GetDaily(ctx, domain.DailyKey{Date: testDate, Kid: testKid})
	if err != nil || !ok {
		t.Fatalf("get daily: ok=%v err=%v", ok, err)
	}
	if len(stored.Tasks) != 2 {
		t.Fatalf("sync should have appended before the failed re-read, got %d tasks", len(stored.Tasks))
	}
}

type capturingLogger struct {
	debugs []string
	infos  []string
	warns  []string
	errs   []string
}

func (l *capturingLogger) Debug(msg string, _ ...any) { l.debugs = append(l.debugs, msg) }
func (l *capturingLogger) Info(msg string, _ ...any)  { l.infos = append(l.infos, msg) }
func (l *capturingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }
func (l *capturingLogger) Error(msg string, _ ...any) { l.errs = append(l.errs, msg) }

func TestSeedDefaultTemplates(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)

	seeded, err := engine.SeedDefaultTemplates(ctx, "Hazel", "Aiden", "Unknown")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if seeded != 2 {
		t.Fatalf("expected 2 seeded templates, got %d", seeded)
	}
	if _, ok, _ := store.GetTemplate(ctx, "Unknown"); ok {
		t.Fatalf("kid without a default should not be seeded")
	}

	// Second run is a no-op.
	seeded, err = engine.SeedDefaultTemplates(ctx, "Hazel", "Aiden")
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if seeded != 0 {
		t.Fatalf("reseed should not overwrite, got %d", seeded)
	}
}

func TestSubscribeObservesEngineMutations(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid, domain.TemplateTask{Subject: "Maths", Book: "Notebook"})

	var snapshots []domain.DailyDocument
	unsubscribe, err := engine.Subscribe(ctx, testDate, testKid, func(doc domain.DailyDocument, ok bool) {
		if ok {
			snapshots = append(snapshots, doc)
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := engine.ToggleCompleted(ctx, testDate, testKid, doc.Tasks[0].ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected create + toggle notifications, got %d", len(snapshots))
	}
	if !snapshots[1].Tasks[0].Completed {
		t.Fatalf("subscriber should see the toggled state")
	}
}

// End-to-end pass over one day: materialize, work the list, edit the
// template, and verify the reconciled result.
func TestDailyChecklistScenario(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	putTemplate(t, store, testKid,
		domain.TemplateTask{Subject: "English", Book: "Textbook"},
		domain.TemplateTask{Subject: "English", Book: "Dictation"},
		domain.TemplateTask{Subject: "Maths", Book: "Notebook"},
	)

	doc, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if err := engine.ToggleCompleted(ctx, testDate, testKid, "1-English-Textbook", true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := engine.DeleteLine(ctx, testDate, testKid, "2-English-Dictation"); err != nil {
		t.Fatalf("delete line: %v", err)
	}
	if err := engine.UpsertTask(ctx, testDate, testKid, TaskInput{Subject: "Maths", Book: "Notebook", Description: "exercise 4"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	putTemplate(t, store, testKid,
		domain.TemplateTask{Subject: "English", Book: "Textbook"},
		domain.TemplateTask{Subject: "English", Book: "Dictation"},
		domain.TemplateTask{Subject: "Maths", Book: "Notebook"},
		domain.TemplateTask{Subject: "GK", Book: "Textbook"},
	)
	final, err := engine.EnsureDailyDocument(ctx, testDate, testKid)
	if err != nil {
		t.Fatalf("final ensure: %v", err)
	}

	keys := final.TaskKeys()
	if _, ok := keys["English::Dictation"]; ok {
		t.Fatalf("tombstoned entry came back")
	}
	if _, ok := keys["GK::Textbook"]; !ok {
		t.Fatalf("new template entry missing")
	}
	if len(final.Tasks) != 4 {
		t.Fatalf("expected 4 lines, got %+v", final.Tasks)
	}
	completed, found := final.FindTask("1-English-Textbook")
	if !found || !completed.Completed {
		t.Fatalf("completion state lost: %+v", completed)
	}
	for _, task := range final.Tasks {
		if final.RemovedKeys.Has(task.TemplateKey()) {
			t.Fatalf("key %q in both tasks and removedKeys", task.TemplateKey())
		}
	}
	_ = doc
}
