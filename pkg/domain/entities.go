// Package domain defines the checklist entities, the tombstone set, and the
// document store contract used by the reconciliation engine.
package domain

import (
	"fmt"
	"time"
)

// Collection identifies a logical document collection in the backing store.
type Collection string

// Supported collections, keyed per the storage contract.
const (
	// CollectionTemplates holds one Template per kid, keyed by kid name.
	CollectionTemplates Collection = "templates"
	// CollectionDaily holds one DailyDocument per (date, kid), keyed by "{date}_{kid}".
	CollectionDaily Collection = "daily"
)

// DateFormat is the calendar-day key layout used in daily document ids.
const DateFormat = "2006-01-02"

// FormatDate renders t as a YYYY-MM-DD daily key component.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// TemplateKeyFor builds the "{subject}::{book}" template key identifying a
// checklist line's template origin. The key is identity for tombstoning and
// sync matching; it is distinct from a task line's generated id.
func TemplateKeyFor(subject, book string) string {
	return subject + "::" + book
}

// TemplateTask is one (subject, book) entry of a kid's reusable template.
type TemplateTask struct {
	Subject string `json:"subject"`
	Book    string `json:"book"`
}

// Key returns the entry's template key.
func (t TemplateTask) Key() string {
	return TemplateKeyFor(t.Subject, t.Book)
}

// Template is the day-independent checklist definition for one kid. It carries
// no per-day state and is mutated out-of-band by an administrator; the engine
// only reads it, except to seed built-in defaults on first use.
type Template struct {
	KidName string         `json:"kidName"`
	Tasks   []TemplateTask `json:"templateTasks"`
}

// Clone returns a deep copy of the template.
func (t Template) Clone() Template {
	cp := t
	cp.Tasks = append([]TemplateTask(nil), t.Tasks...)
	return cp
}

// Task is one checklist line inside a daily document. ID is unique only within
// the owning document; (Subject, Book) is the line's template key.
type Task struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Book        string `json:"book"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// TemplateKey returns the line's "{subject}::{book}" identity.
func (t Task) TemplateKey() string {
	return TemplateKeyFor(t.Subject, t.Book)
}

// DailyKey addresses exactly one daily document per (date, kid).
type DailyKey struct {
	Date string
	Kid  string
}

// NewDailyKey builds a key for the given calendar day and kid.
func NewDailyKey(date time.Time, kid string) DailyKey {
	return DailyKey{Date: FormatDate(date), Kid: kid}
}

// String renders the composite document id "{date}_{kid}".
func (k DailyKey) String() string {
	return fmt.Sprintf("%s_%s", k.Date, k.Kid)
}

// DailyDocument is the mutable per-(date, kid) materialization of a checklist.
// It is created once, mutated in place, and never deleted by the engine.
type DailyDocument struct {
	ID          string       `json:"id"`
	KidName     string       `json:"kidName"`
	Date        string       `json:"date"`
	Tasks       []Task       `json:"tasks"`
	RemovedKeys TombstoneSet `json:"removedKeys"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Key returns the document's composite address.
func (d DailyDocument) Key() DailyKey {
	return DailyKey{Date: d.Date, Kid: d.KidName}
}

// Clone returns a deep copy of the document.
func (d DailyDocument) Clone() DailyDocument {
	cp := d
	cp.Tasks = append([]Task(nil), d.Tasks...)
	cp.RemovedKeys = d.RemovedKeys.Clone()
	return cp
}

// TaskKeys returns the set of template keys currently present in Tasks.
func (d DailyDocument) TaskKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(d.Tasks))
	for _, t := range d.Tasks {
		keys[t.TemplateKey()] = struct{}{}
	}
	return keys
}

// FindTask returns the task with the given line id.
func (d DailyDocument) FindTask(id string) (Task, bool) {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// DailyPatch is a merge-patch over the named top-level daily document fields.
// Nil fields are left untouched by UpdateDaily.
type DailyPatch struct {
	Tasks       *[]Task
	RemovedKeys *TombstoneSet
	UpdatedAt   *time.Time
}

// Apply merges the patch into doc, cloning replaced slices.
func (p DailyPatch) Apply(doc *DailyDocument) {
	if p.Tasks != nil {
		doc.Tasks = append([]Task(nil), (*p.Tasks)...)
	}
	if p.RemovedKeys != nil {
		doc.RemovedKeys = p.RemovedKeys.Clone()
	}
	if p.UpdatedAt != nil {
		doc.UpdatedAt = *p.UpdatedAt
	}
}
