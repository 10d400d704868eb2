package destination

import (
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/internal/common/database"
	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
)

func withPostgresStore(t *testing.T, f func(store *PostgresStore)) {
	connection := os.Getenv("FLOWLENS_TEST_POSTGRES")
	if connection == "" {
		t.Skip("FLOWLENS_TEST_POSTGRES not set")
	}
	ctx := flowlenscontext.Background()
	db, err := pgxpool.New(ctx, connection)
	require.NoError(t, err)
	_, err = db.Exec(ctx, "DROP TABLE IF EXISTS document, schema_version")
	require.NoError(t, err)
	store, err := NewPostgresStore(ctx, db)
	require.NoError(t, err)
	defer store.Close()
	f(store)
}

func TestPostgresStore_ConcurrentUpdatesAllLand(t *testing.T) {
	withPostgresStore(t, func(store *PostgresStore) {
		ctx := flowlenscontext.Background()
		ids := []string{"a", "b", "c", "d", "e", "f"}
		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				result, err := store.Bulk(ctx, []*Operation{
					{Type: OpUpdate, Index: "i", Id: "1", Merge: appendId(id), RetryOnConflict: 20},
				})
				assert.NoError(t, err)
				assert.False(t, result.HasFailures())
			}(id)
		}
		wg.Wait()

		doc, err := store.Get(ctx, "i", "1")
		require.NoError(t, err)
		c := counter{}
		require.NoError(t, json.Unmarshal(doc.Source, &c))
		assert.ElementsMatch(t, ids, c.Ids)
	})
}

func TestPostgresStore_IndexReplaces(t *testing.T) {
	withPostgresStore(t, func(store *PostgresStore) {
		ctx := flowlenscontext.Background()
		for _, v := range []string{`{"v":1}`, `{"v":2}`} {
			_, err := store.Bulk(ctx, []*Operation{{Type: OpIndex, Index: "i", Id: "1", Source: json.RawMessage(v)}})
			require.NoError(t, err)
		}
		docs, err := store.Search(ctx, "i")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.JSONEq(t, `{"v":2}`, string(docs[0].Source))
		assert.Equal(t, int64(2), docs[0].Version)
	})
}

func TestMigrationsAreEmbedded(t *testing.T) {
	migrations, err := database.ReadMigrations(migrationFiles, "migrations")
	require.NoError(t, err)
	assert.Len(t, migrations, 2)
}
