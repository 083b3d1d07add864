package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Date   int64  `json:"date"`
	Active bool   `json:"active"`
}

func (w *widget) EntityKind() string { return "Widget" }
func (w *widget) EntityID() string   { return w.ID }

func seed(t *testing.T, s Store, ws ...*widget) {
	t.Helper()
	ctx := context.Background()
	for _, w := range ws {
		require.NoError(t, Save(ctx, s, w))
	}
}

func TestLoadAbsent(t *testing.T) {
	s := NewMemory()
	w, ok, err := Load[widget](context.Background(), s, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, w)
}

func TestMustLoadFailsLoudly(t *testing.T) {
	s := NewMemory()
	_, err := MustLoad[widget](context.Background(), s, "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadOrCreateOnlyCreatesOnce(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	calls := 0
	create := func() *widget {
		calls++
		return &widget{ID: "a", Owner: "first"}
	}

	w, created, err := LoadOrCreate(ctx, s, "a", create)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "first", w.Owner)

	w.Owner = "changed"
	require.NoError(t, Save(ctx, s, w))

	w, created, err = LoadOrCreate(ctx, s, "a", create)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "changed", w.Owner)
	assert.Equal(t, 1, calls)
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seed(t, s, &widget{ID: "a", Owner: "before"})

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx Tx) error {
		require.NoError(t, Save(ctx, tx, &widget{ID: "a", Owner: "after"}))
		require.NoError(t, Save(ctx, tx, &widget{ID: "b"}))

		// writes are visible inside the unit
		w, err := MustLoad[widget](ctx, tx, "a")
		require.NoError(t, err)
		assert.Equal(t, "after", w.Owner)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	w, err := MustLoad[widget](ctx, s, "a")
	require.NoError(t, err)
	assert.Equal(t, "before", w.Owner)
	_, ok, err := Load[widget](ctx, s, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAtomicCommits(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	err := s.Atomic(ctx, func(tx Tx) error {
		return Save(ctx, tx, &widget{ID: "a", Owner: "x"})
	})
	require.NoError(t, err)

	w, err := MustLoad[widget](ctx, s, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", w.Owner)
}

func TestListFiltersAndOrders(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seed(t, s,
		&widget{ID: "a", Owner: "u1", Date: 300, Active: true},
		&widget{ID: "b", Owner: "u1", Date: 100, Active: false},
		&widget{ID: "c", Owner: "u2", Date: 200, Active: true},
		&widget{ID: "d", Owner: "u1", Date: 1000, Active: true},
	)

	got, err := List[widget](ctx, s, Query{Where: map[string]string{"owner": "u1"}, OrderBy: "date"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "a", "d"}, []string{got[0].ID, got[1].ID, got[2].ID})

	got, err = List[widget](ctx, s, Query{Where: map[string]string{"active": "true"}, OrderBy: "date", Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	from, to := int64(150), int64(300)
	got, err = List[widget](ctx, s, Query{Range: &Range{Field: "date", From: &from, To: &to}, OrderBy: "date"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	got, err = List[widget](ctx, s, Query{Skip: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d", got[0].ID)

	got, err = List[widget](ctx, s, Query{Skip: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListSQLBindsEverything(t *testing.T) {
	from := int64(10)
	sql, args := listSQL("Widget", Query{
		Where:   map[string]string{"owner": "u1"},
		Range:   &Range{Field: "date", From: &from},
		OrderBy: "date",
		Desc:    true,
		Limit:   5,
		Skip:    2,
	})
	assert.Equal(t,
		"SELECT data FROM entities WHERE kind = $1"+
			" AND data->>$2::text = $3::text"+
			" AND (data->>$4::text)::numeric >= $5"+
			" ORDER BY data->$6::text DESC, id DESC"+
			" LIMIT $7 OFFSET $8",
		sql)
	assert.Equal(t, []any{"Widget", "owner", "u1", "date", int64(10), "date", 5, 2}, args)
}
