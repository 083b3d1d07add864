// Package store persists typed entities as JSON documents keyed by kind and id.
//
// Every event is applied inside one Atomic unit: either all of its writes are
// visible afterwards or none are.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("entity not found")
	// ErrUnavailable wraps backend failures; the event should be retried
	// rather than dropped.
	ErrUnavailable = errors.New("store unavailable")
)

// Entity is implemented by every persisted model.
type Entity interface {
	EntityKind() string
	EntityID() string
}

// Tx is the read/write view handed to an Atomic unit.
type Tx interface {
	Get(ctx context.Context, kind, id string) ([]byte, bool, error)
	Put(ctx context.Context, kind, id string, data []byte) error
}

type Store interface {
	Tx
	List(ctx context.Context, kind string, q Query) ([][]byte, error)
	// Atomic runs fn against a private view and commits its writes only if
	// fn returns nil.
	Atomic(ctx context.Context, fn func(Tx) error) error
	Close()
}

// Query filters a listing on top-level JSON fields of the stored documents.
type Query struct {
	Where   map[string]string // exact match on the field's text form
	Range   *Range
	OrderBy string // falls back to id
	Desc    bool
	Limit   int
	Skip    int
}

// Range bounds a numeric field, both ends inclusive.
type Range struct {
	Field string
	From  *int64
	To    *int64
}

type entityPtr[T any] interface {
	*T
	Entity
}

func kindOf[T any, PT entityPtr[T]]() string {
	var zero T
	return PT(&zero).EntityKind()
}

// Load is the lazy accessor: absence is reported, not an error.
func Load[T any, PT entityPtr[T]](ctx context.Context, tx Tx, id string) (PT, bool, error) {
	kind := kindOf[T, PT]()
	data, ok, err := tx.Get(ctx, kind, id)
	if err != nil || !ok {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return &v, true, nil
}

// MustLoad is the strict accessor: a missing entity is ErrNotFound.
func MustLoad[T any, PT entityPtr[T]](ctx context.Context, tx Tx, id string) (PT, error) {
	v, ok, err := Load[T, PT](ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kindOf[T, PT](), id)
	}
	return v, nil
}

// LoadOrCreate returns the stored entity, or persists and returns the one
// built by create. The bool reports whether it was created.
func LoadOrCreate[T any, PT entityPtr[T]](ctx context.Context, tx Tx, id string, create func() PT) (PT, bool, error) {
	v, ok, err := Load[T, PT](ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return v, false, nil
	}
	v = create()
	if err := Save(ctx, tx, v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func Save(ctx context.Context, tx Tx, e Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", e.EntityKind(), e.EntityID(), err)
	}
	return tx.Put(ctx, e.EntityKind(), e.EntityID(), data)
}

func List[T any, PT entityPtr[T]](ctx context.Context, s Store, q Query) ([]PT, error) {
	kind := kindOf[T, PT]()
	rows, err := s.List(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(rows))
	for _, data := range rows {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		out = append(out, &v)
	}
	return out, nil
}
