package checkpoint

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/database"
	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
	"github.com/flowlens/flowlens/internal/importer/model"
)

// PostgresStore keeps one row per checkpoint, the state being stored as jsonb.
type PostgresStore struct {
	db        *pgxpool.Pool
	tableName string
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewPostgresStore(ctx *flowlenscontext.Context, db *pgxpool.Pool, tableName string) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.WithStack(&flowlenserrors.ErrInvalidArgument{
			Name:    "db",
			Value:   db,
			Message: "db must be non-nil",
		})
	}
	if tableName == "" {
		return nil, errors.WithStack(&flowlenserrors.ErrInvalidArgument{
			Name:    "TableName",
			Value:   tableName,
			Message: "TableName must be non-empty",
		})
	}
	if err := createTableIfNotExists(ctx, db, tableName); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, tableName: tableName}, nil
}

func createTableIfNotExists(ctx *flowlenscontext.Context, db *pgxpool.Pool, tableName string) error {
	_, err := db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		    entity_type_id TEXT NOT NULL,
		    data_source_id TEXT NOT NULL,
		    state JSONB NOT NULL,
		    last_modified TIMESTAMPTZ NOT NULL DEFAULT now(),
		    PRIMARY KEY (entity_type_id, data_source_id)
	);`, tableName))
	return errors.WithStack(err)
}

func (s *PostgresStore) Get(ctx *flowlenscontext.Context, entityTypeId string, dataSourceId string) (*model.IndexState, error) {
	return s.get(ctx, s.db, entityTypeId, dataSourceId, "")
}

func (s *PostgresStore) get(
	ctx *flowlenscontext.Context,
	q rowQuerier,
	entityTypeId string,
	dataSourceId string,
	lock string,
) (*model.IndexState, error) {
	sql := fmt.Sprintf("SELECT state FROM %s WHERE entity_type_id = $1 AND data_source_id = $2 %s", s.tableName, lock)
	var data []byte
	err := q.QueryRow(ctx, sql, entityTypeId, dataSourceId).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return decode(data)
}

// Put stores all states in one transaction. Stored rows are locked while being compared with the incoming state so
// that concurrent writers cannot move a checkpoint backwards.
func (s *PostgresStore) Put(ctx *flowlenscontext.Context, states ...model.IndexState) error {
	upsert := fmt.Sprintf(`
		INSERT INTO %s (entity_type_id, data_source_id, state, last_modified) VALUES ($1, $2, $3, now())
		ON CONFLICT (entity_type_id, data_source_id) DO UPDATE SET state = EXCLUDED.state, last_modified = now()`,
		s.tableName)
	return database.WithRetry(ctx, database.DefaultRetryPolicy, func() error {
		return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
			return s.putAll(ctx, tx, upsert, states)
		})
	})
}

func (s *PostgresStore) putAll(ctx *flowlenscontext.Context, tx pgx.Tx, upsert string, states []model.IndexState) error {
	for _, state := range states {
		stored, err := s.get(ctx, tx, state.EntityTypeId, state.DataSourceId, "FOR UPDATE")
		if err != nil {
			return err
		}
		if !advances(ctx, stored, state) {
			continue
		}
		data, err := encode(state)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsert, state.EntityTypeId, state.DataSourceId, string(data)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (s *PostgresStore) Delete(ctx *flowlenscontext.Context, entityTypeId string, dataSourceId string) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE entity_type_id = $1 AND data_source_id = $2", s.tableName)
	_, err := s.db.Exec(ctx, sql, entityTypeId, dataSourceId)
	return errors.WithStack(err)
}

func (s *PostgresStore) List(ctx *flowlenscontext.Context) ([]model.IndexState, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf("SELECT state FROM %s ORDER BY entity_type_id, data_source_id", s.tableName))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	var states []model.IndexState
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.WithStack(err)
		}
		state, err := decode(data)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, errors.WithStack(rows.Err())
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
