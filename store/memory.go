package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory keeps every document in process. It backs tests and the
// STORE=memory mode.
type Memory struct {
	mu     sync.RWMutex
	writer sync.Mutex
	data   map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, kind, id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[kind][id]
	return data, ok, nil
}

func (m *Memory) Put(_ context.Context, kind, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(kind, id, data)
	return nil
}

func (m *Memory) put(kind, id string, data []byte) {
	byID, ok := m.data[kind]
	if !ok {
		byID = make(map[string][]byte)
		m.data[kind] = byID
	}
	byID[id] = bytes.Clone(data)
}

func (m *Memory) Atomic(ctx context.Context, fn func(Tx) error) error {
	m.writer.Lock()
	defer m.writer.Unlock()

	tx := &memoryTx{base: m, writes: make(map[string]map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for kind, byID := range tx.writes {
		for id, data := range byID {
			m.put(kind, id, data)
		}
	}
	return nil
}

func (m *Memory) List(_ context.Context, kind string, q Query) ([][]byte, error) {
	m.mu.RLock()
	docs := make([]memoryDoc, 0, len(m.data[kind]))
	for id, data := range m.data[kind] {
		docs = append(docs, memoryDoc{id: id, raw: data})
	}
	m.mu.RUnlock()

	matched := docs[:0]
	for _, d := range docs {
		fields, err := decodeFields(d.raw)
		if err != nil {
			return nil, err
		}
		d.fields = fields
		if matches(fields, q) {
			matched = append(matched, d)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		c := 0
		if q.OrderBy != "" {
			c = compareValues(matched[i].fields[q.OrderBy], matched[j].fields[q.OrderBy])
		}
		if c == 0 {
			c = compareStrings(matched[i].id, matched[j].id)
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			return [][]byte{}, nil
		}
		matched = matched[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	out := make([][]byte, len(matched))
	for i, d := range matched {
		out[i] = bytes.Clone(d.raw)
	}
	return out, nil
}

func (m *Memory) Close() {}

type memoryDoc struct {
	id     string
	raw    []byte
	fields map[string]any
}

// memoryTx overlays pending writes on the committed data.
type memoryTx struct {
	base   *Memory
	writes map[string]map[string][]byte
}

func (t *memoryTx) Get(ctx context.Context, kind, id string) ([]byte, bool, error) {
	if data, ok := t.writes[kind][id]; ok {
		return data, true, nil
	}
	return t.base.Get(ctx, kind, id)
}

func (t *memoryTx) Put(_ context.Context, kind, id string, data []byte) error {
	byID, ok := t.writes[kind]
	if !ok {
		byID = make(map[string][]byte)
		t.writes[kind] = byID
	}
	byID[id] = bytes.Clone(data)
	return nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func matches(fields map[string]any, q Query) bool {
	for field, want := range q.Where {
		v, ok := fields[field]
		if !ok || textOf(v) != want {
			return false
		}
	}
	if r := q.Range; r != nil {
		n, ok := numberOf(fields[r.Field])
		if !ok {
			return false
		}
		if r.From != nil && n.LessThan(decimal.NewFromInt(*r.From)) {
			return false
		}
		if r.To != nil && n.GreaterThan(decimal.NewFromInt(*r.To)) {
			return false
		}
	}
	return true
}

// textOf mirrors Postgres' ->> rendering of a JSON value.
func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func numberOf(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	}
	return decimal.Zero, false
}

// compareValues orders numbers numerically and everything else by text.
func compareValues(a, b any) int {
	na, okA := a.(json.Number)
	nb, okB := b.(json.Number)
	if okA && okB {
		da, errA := decimal.NewFromString(na.String())
		db, errB := decimal.NewFromString(nb.String())
		if errA == nil && errB == nil {
			return da.Cmp(db)
		}
	}
	return compareStrings(textOf(a), textOf(b))
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
