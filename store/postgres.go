package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	kind       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS entities_data_idx ON entities USING GIN (data jsonb_path_ops);
`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores every entity as one JSONB row of the entities table and
// maps Atomic onto a SQL transaction.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres connects and creates the schema if it is missing.
func NewPostgres(ctx context.Context, databaseUrl string, maxConns int32) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseUrl)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	if _, err := dbPool.Exec(ctx, schema); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("unable to create schema: %w", err)
	}
	return &Postgres{db: dbPool}, nil
}

func (p *Postgres) Get(ctx context.Context, kind, id string) ([]byte, bool, error) {
	return get(ctx, p.db, kind, id)
}

func (p *Postgres) Put(ctx context.Context, kind, id string, data []byte) error {
	return put(ctx, p.db, kind, id, data)
}

// Atomic maps the unit onto one SQL transaction. Errors from fn are returned
// untouched; begin and commit failures are ErrUnavailable.
func (p *Postgres) Atomic(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w: %w", ErrUnavailable, err)
	}
	defer tx.Rollback(context.Background()) // no-op once committed

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, kind string, q Query) ([][]byte, error) {
	sql, args := listSQL(kind, q)
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", kind, ErrUnavailable, err)
	}
	defer rows.Close()

	out := [][]byte{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() {
	p.db.Close()
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Get(ctx context.Context, kind, id string) ([]byte, bool, error) {
	return get(ctx, t.tx, kind, id)
}

func (t *postgresTx) Put(ctx context.Context, kind, id string, data []byte) error {
	return put(ctx, t.tx, kind, id, data)
}

func get(ctx context.Context, q querier, kind, id string) ([]byte, bool, error) {
	var data []byte
	err := q.QueryRow(ctx, "SELECT data FROM entities WHERE kind = $1 AND id = $2", kind, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s %s: %w: %w", kind, id, ErrUnavailable, err)
	}
	return data, true, nil
}

func put(ctx context.Context, q querier, kind, id string, data []byte) error {
	_, err := q.Exec(ctx,
		`INSERT INTO entities (kind, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (kind, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = now()`,
		kind, id, string(data),
	)
	if err != nil {
		return fmt.Errorf("put %s %s: %w: %w", kind, id, ErrUnavailable, err)
	}
	return nil
}

// listSQL renders q with every field name and value bound as a parameter.
func listSQL(kind string, q Query) (string, []any) {
	var b strings.Builder
	args := []any{kind}
	b.WriteString("SELECT data FROM entities WHERE kind = $1")

	fields := make([]string, 0, len(q.Where))
	for f := range q.Where {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		args = append(args, f, q.Where[f])
		fmt.Fprintf(&b, " AND data->>$%d::text = $%d::text", len(args)-1, len(args))
	}

	if r := q.Range; r != nil {
		if r.From != nil {
			args = append(args, r.Field, *r.From)
			fmt.Fprintf(&b, " AND (data->>$%d::text)::numeric >= $%d", len(args)-1, len(args))
		}
		if r.To != nil {
			args = append(args, r.Field, *r.To)
			fmt.Fprintf(&b, " AND (data->>$%d::text)::numeric <= $%d", len(args)-1, len(args))
		}
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		fmt.Fprintf(&b, " ORDER BY data->$%d::text %s, id %s", len(args), dir, dir)
	} else {
		fmt.Fprintf(&b, " ORDER BY id %s", dir)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if q.Skip > 0 {
		args = append(args, q.Skip)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
