package database

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Querier is the part of a pgx pool or connection migrations need.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Migration struct {
	id   int
	name string
	sql  string
}

// UpdateDatabase applies, in order, every migration newer than the version recorded for namespace. Versions are kept
// per namespace so that several stores can share one database.
func UpdateDatabase(ctx context.Context, db Querier, namespace string, migrations []Migration) error {
	log.Infof("Updating postgres schema %s...", namespace)
	version, err := readVersion(ctx, db, namespace)
	if err != nil {
		return err
	}
	log.Infof("Current version of %s is %d", namespace, version)

	for _, m := range migrations {
		if m.id <= version {
			continue
		}
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return errors.Wrapf(err, "applying migration %s", m.name)
		}
		version = m.id
		if err := setVersion(ctx, db, namespace, version); err != nil {
			return err
		}
	}
	log.Infof("Schema %s is at version %d", namespace, version)
	return nil
}

func readVersion(ctx context.Context, db Querier, namespace string) (int, error) {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
		    namespace TEXT PRIMARY KEY,
		    version INT NOT NULL
	);`)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	var version int
	err = db.QueryRow(ctx, `SELECT version FROM schema_version WHERE namespace = $1`, namespace).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return version, errors.WithStack(err)
}

func setVersion(ctx context.Context, db Querier, namespace string, version int) error {
	_, err := db.Exec(ctx, `
		INSERT INTO schema_version (namespace, version) VALUES ($1, $2)
		ON CONFLICT (namespace) DO UPDATE SET version = EXCLUDED.version`, namespace, version)
	return errors.WithStack(err)
}

// ReadMigrations reads the .sql files of basePath. File names start with the migration id, e.g. 001_create.sql.
func ReadMigrations(fsys fs.FS, basePath string) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, basePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	migrations := []Migration{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		id, err := strconv.Atoi(strings.Split(f.Name(), "_")[0])
		if err != nil {
			return nil, errors.Wrapf(err, "migration %s does not start with a numeric id", f.Name())
		}
		sql, err := fs.ReadFile(fsys, path.Join(basePath, f.Name()))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		migrations = append(migrations, Migration{
			id:   id,
			name: f.Name(),
			sql:  string(sql),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].id < migrations[j].id })
	return migrations, nil
}
