package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Collections used by the API.
const (
	CollectionCredentials   = "credentials"
	CollectionUsers         = "users"
	CollectionStudents      = "students"
	CollectionAssignments   = "assignments"
	CollectionClasses       = "classes"
	CollectionRefreshTokens = "refresh_tokens"
	CollectionReportJobs    = "report_jobs"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("document not found")

// Filter is an equality predicate on a top-level document field. The store
// supports no other predicate kinds; range and text filtering happen in
// memory at the call site.
type Filter struct {
	Field string
	Value interface{}
}

// Eq builds an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Document pairs a document id with its raw JSON payload.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document payload into dest.
func (d Document) Decode(dest interface{}) error {
	return json.Unmarshal(d.Data, dest)
}

// Store is the document-store adapter: per-collection reads and writes with
// equality-only queries. The store offers no cross-document transactions;
// multi-document protocols above it must be written to tolerate partial
// completion.
type Store interface {
	// Get fetches one document by id, returning ErrNotFound when absent.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Query returns all documents matching every filter.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Count returns the number of documents matching every filter.
	Count(ctx context.Context, collection string, filters ...Filter) (int, error)
	// Add inserts value under a generated id and returns that id. The id is
	// also written into the document's "id" field.
	Add(ctx context.Context, collection string, value interface{}) (string, error)
	// Set creates or replaces the document with the caller-chosen id.
	Set(ctx context.Context, collection, id string, value interface{}) error
	// Update applies a partial patch to top-level fields. A nil patch value
	// removes the field. Returns ErrNotFound when the document is absent.
	Update(ctx context.Context, collection, id string, patch map[string]interface{}) error
	// Delete removes the document, returning ErrNotFound when absent.
	Delete(ctx context.Context, collection, id string) error
}

// encode marshals a value and forces the "id" field to the given id so the
// payload always carries its own identity, mirroring how the dashboard
// documents were stored.
func encode(value interface{}, id string) (json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["id"] = id
	return json.Marshal(fields)
}
