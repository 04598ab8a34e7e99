// Package store provides a narrow record-store contract over interchangeable
// backends. Records are flat JSON documents keyed by a string id within a
// named table.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Record is one stored document. The "id" key holds the record id.
type Record = map[string]any

// ErrNotFound reports an unknown record id.
var ErrNotFound = errors.New("record not found")

// NotFoundError wraps ErrNotFound with the table and id that missed.
type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %q not found in table %q", e.ID, e.Table)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(table, id string) error {
	return &NotFoundError{Table: table, ID: id}
}

// Store is the record persistence contract. Insert assigns an id when the
// record has none and returns the stored document. Select matches records
// whose fields equal every filter entry; a nil filter selects the whole
// table. Update merges changes into the existing record.
type Store interface {
	Insert(ctx context.Context, table string, record Record) (Record, error)
	Get(ctx context.Context, table, id string) (Record, error)
	Select(ctx context.Context, table string, filter Record) ([]Record, error)
	Update(ctx context.Context, table, id string, changes Record) (Record, error)
	Delete(ctx context.Context, table, id string) error
}
