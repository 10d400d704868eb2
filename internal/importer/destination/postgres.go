package destination

import (
	"context"
	"embed"
	"encoding/json"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/database"
	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
)

const conflictRetryDelay = 20 * time.Millisecond

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresStore keeps documents in a single jsonb table. Updates use optimistic concurrency on the version column and
// are retried when they lose a race with another writer.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx *flowlenscontext.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.WithStack(&flowlenserrors.ErrInvalidArgument{
			Name:    "db",
			Value:   db,
			Message: "db must be non-nil",
		})
	}
	migrations, err := database.ReadMigrations(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	if err := database.UpdateDatabase(ctx, db, "destination", migrations); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Bulk(ctx *flowlenscontext.Context, ops []*Operation) (*BulkResult, error) {
	result := newBulkResult()
	for i, op := range ops {
		err := s.write(ctx, op)
		if err == nil {
			continue
		}
		if flowlenserrors.IsNetworkError(err) || flowlenserrors.IsCancellation(err) {
			return nil, errors.WithMessagef(err, "writing %s", op)
		}
		result.Failures[i] = err
	}
	return result, nil
}

func (s *PostgresStore) write(ctx *flowlenscontext.Context, op *Operation) error {
	if op.Type == OpIndex {
		_, err := s.db.Exec(ctx, `
			INSERT INTO document (index_name, id, source, version) VALUES ($1, $2, $3, 1)
			ON CONFLICT (index_name, id) DO UPDATE SET source = EXCLUDED.source, version = document.version + 1, last_modified = now()`,
			op.Index, op.Id, string(op.Source))
		return errors.WithStack(err)
	}
	return retry.Do(
		func() error { return s.update(ctx, op) },
		retry.Attempts(op.RetryOnConflict+1),
		retry.Delay(conflictRetryDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrVersionConflict) }),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

func (s *PostgresStore) update(ctx *flowlenscontext.Context, op *Operation) error {
	current, err := s.get(ctx, s.db, op.Index, op.Id)
	if err != nil {
		return err
	}
	source, ok, err := apply(op, current)
	if err != nil || !ok {
		return err
	}
	var tag pgconn.CommandTag
	if current == nil {
		tag, err = s.db.Exec(ctx, `
			INSERT INTO document (index_name, id, source, version) VALUES ($1, $2, $3, 1)
			ON CONFLICT (index_name, id) DO NOTHING`,
			op.Index, op.Id, string(source))
	} else {
		tag, err = s.db.Exec(ctx, `
			UPDATE document SET source = $3, version = version + 1, last_modified = now()
			WHERE index_name = $1 AND id = $2 AND version = $4`,
			op.Index, op.Id, string(source), current.Version)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrVersionConflict, "updating %s", op)
	}
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) get(ctx *flowlenscontext.Context, q rowQuerier, index string, id string) (*Document, error) {
	doc := &Document{Index: index, Id: id}
	var source []byte
	err := q.QueryRow(ctx, "SELECT source, version FROM document WHERE index_name = $1 AND id = $2", index, id).
		Scan(&source, &doc.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	doc.Source = json.RawMessage(source)
	return doc, nil
}

func (s *PostgresStore) Get(ctx *flowlenscontext.Context, index string, id string) (*Document, error) {
	return s.get(ctx, s.db, index, id)
}

func (s *PostgresStore) Search(ctx *flowlenscontext.Context, index string) ([]*Document, error) {
	rows, err := s.db.Query(ctx, "SELECT id, source, version FROM document WHERE index_name = $1 ORDER BY id", index)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		doc := &Document{Index: index}
		var source []byte
		if err := rows.Scan(&doc.Id, &source, &doc.Version); err != nil {
			return nil, errors.WithStack(err)
		}
		doc.Source = source
		docs = append(docs, doc)
	}
	return docs, errors.WithStack(rows.Err())
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
