package backend

import (
	"context"
	"errors"
	"fmt"

	"bilancio/internal/core"
)

// Ports for the record sources the dashboard reads from.
type (
	RecordLister interface {
		// ListRecords returns every financial record as a read-only snapshot.
		ListRecords(ctx context.Context) ([]core.FinancialRecord, error)
	}

	PartyLister interface {
		// ListParties returns the known counterparties with the given role.
		ListParties(ctx context.Context, role core.PartyRole) ([]core.Party, error)
	}

	RecordWriter interface {
		// CreateRecord stores a new record and returns its id.
		CreateRecord(ctx context.Context, r core.FinancialRecord) (string, error)
		// MarkPaid flips a record to paid and returns the updated record.
		MarkPaid(ctx context.Context, id string) (core.FinancialRecord, error)
	}
)

// Source represents a unified backend interface that provides all necessary operations
type Source interface {
	RecordLister
	PartyLister
	RecordWriter
}

var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyPaid    = errors.New("record already paid")
	ErrInvalidRecord  = errors.New("invalid record")
	ErrUnknownBackend = errors.New("unknown backend type")
)

// FetchError is returned when the backend could not be reached or answered
// with something unusable. Panels surface it; nothing retries it.
type FetchError struct {
	Resource string
	Status   int // HTTP status, 0 when no response was received
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Resource, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AsFetchError wraps err in a FetchError unless it already is one.
func AsFetchError(resource string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Resource: resource, Err: err}
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Type represents the type of backend
type Type string

const (
	SQLite Type = "sqlite"
	Memory Type = "memory"
	REST   Type = "rest"
)

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SQLite, Memory, REST:
		return true
	default:
		return false
	}
}

func (t Type) String() string {
	return string(t)
}
