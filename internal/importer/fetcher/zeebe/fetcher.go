package zeebe

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
	"github.com/flowlens/flowlens/internal/importer/index"
	"github.com/flowlens/flowlens/internal/importer/model"
)

const DefaultRecordTablePrefix = "zeebe"

var dialect = goqu.Dialect("postgres")

type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Fetcher reads exported broker records of one value type. The exporter writes each value type to its own table,
// e.g. records of value type PROCESS_INSTANCE to zeebe_process_instance.
type Fetcher struct {
	db           Querier
	dataSourceId string
	table        string
}

func NewFetcher(db Querier, dataSourceId string, tablePrefix string, valueType string) *Fetcher {
	if tablePrefix == "" {
		tablePrefix = DefaultRecordTablePrefix
	}
	return &Fetcher{
		db:           db,
		dataSourceId: dataSourceId,
		table:        fmt.Sprintf("%s_%s", tablePrefix, strings.ToLower(valueType)),
	}
}

// Fetch returns the records of page.PartitionId that come after page.After, ordered by position or sequence as the
// page requests. A missing table means the exporter has not written this value type yet.
func (f *Fetcher) Fetch(ctx *flowlenscontext.Context, page index.Page) ([]*model.ZeebeRecord, error) {
	sql, args, err := f.pageQuery(page)
	if err != nil {
		return nil, err
	}
	rows, err := f.db.Query(ctx, sql, args...)
	if err != nil {
		if flowlenserrors.IsUndefinedTable(err) {
			return nil, errors.WithStack(&flowlenserrors.ErrSourceNotFound{DataSource: f.dataSourceId, Source: f.table})
		}
		return nil, errors.Wrapf(err, "querying %s", f.table)
	}
	defer rows.Close()

	records := make([]*model.ZeebeRecord, 0, page.Limit)
	for rows.Next() {
		r := &model.ZeebeRecord{}
		var value []byte
		if err := rows.Scan(&r.PartitionId, &r.Position, &r.Sequence, &r.Key, &r.Intent, &r.ValueType, &r.Timestamp, &value); err != nil {
			return nil, errors.WithStack(err)
		}
		r.Value = value
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		if flowlenserrors.IsUndefinedTable(err) {
			return nil, errors.WithStack(&flowlenserrors.ErrSourceNotFound{DataSource: f.dataSourceId, Source: f.table})
		}
		return nil, errors.Wrapf(err, "reading %s", f.table)
	}
	return records, nil
}

func (f *Fetcher) pageQuery(page index.Page) (string, []any, error) {
	orderBy := page.OrderBy
	if orderBy == "" {
		orderBy = index.OrderByPosition
	}
	sql, args, err := dialect.From(f.table).Prepared(true).
		Select(
			goqu.C("partition_id"),
			goqu.C("position"),
			goqu.L(`COALESCE("sequence", 0)`).As("sequence"),
			goqu.C("key"),
			goqu.C("intent"),
			goqu.C("value_type"),
			goqu.C("timestamp"),
			goqu.C("value"),
		).
		Where(
			goqu.C("partition_id").Eq(page.PartitionId),
			goqu.C(string(orderBy)).Gt(page.After),
		).
		Order(goqu.C(string(orderBy)).Asc()).
		Limit(uint(page.Limit)).
		ToSQL()
	if err != nil {
		return "", nil, errors.WithStack(err)
	}
	return sql, args, nil
}

func (f *Fetcher) Table() string {
	return f.table
}
