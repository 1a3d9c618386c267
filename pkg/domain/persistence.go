package domain

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError reports a missing document in a collection.
type NotFoundError struct {
	Collection Collection
	Key        string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s document %q not found", e.Collection, e.Key)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// SubscribeFunc receives the full current document on every change, or
// ok=false when the document is absent. Consumers must be able to re-render
// from a full snapshot at any time; no incremental-patch contract exists.
type SubscribeFunc func(doc DailyDocument, ok bool)

// DocumentStore is the abstract store collaborator the engine is written
// against: point reads, full-document creation, merge-patch updates on named
// top-level fields, and push-based change notification. Operations on the same
// key follow read-then-write optimistic semantics; the store provides no
// cross-call transaction.
type DocumentStore interface {
	// GetTemplate returns the stored template for kid, reporting absence via ok.
	GetTemplate(ctx context.Context, kid string) (Template, bool, error)
	// PutTemplate stores or overwrites a kid's template.
	PutTemplate(ctx context.Context, tpl Template) error
	// GetDaily returns the daily document for key, reporting absence via ok.
	GetDaily(ctx context.Context, key DailyKey) (DailyDocument, bool, error)
	// PutDaily creates or overwrites the full daily document at its key.
	PutDaily(ctx context.Context, doc DailyDocument) error
	// UpdateDaily merge-patches the named fields of an existing document.
	// Returns NotFoundError when the document does not exist.
	UpdateDaily(ctx context.Context, key DailyKey, patch DailyPatch) error
	// ListDailyByDate returns every daily document for the given YYYY-MM-DD
	// date, ordered by kid name.
	ListDailyByDate(ctx context.Context, date string) ([]DailyDocument, error)
	// SubscribeDaily registers fn for change notifications on key and returns
	// an unsubscribe function. fn is invoked once immediately with the current
	// state, then after every successful write touching the key.
	SubscribeDaily(ctx context.Context, key DailyKey, fn SubscribeFunc) (func(), error)
}
