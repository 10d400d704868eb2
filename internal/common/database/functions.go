package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
)

// PostgresConfig holds libpq style connection parameters, e.g. host, port, user, password, dbname, sslmode.
type PostgresConfig struct {
	Connection map[string]string
	// Maximum number of pooled connections. Zero means the pgx default.
	MaxConns int32
}

func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := make([]string, 0, len(values))
	for _, k := range keys {
		parts = append(parts, k+"='"+replacer.Replace(values[k])+"'")
	}
	return strings.Join(parts, " ")
}

func OpenPgxPool(ctx context.Context, config PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(CreateConnectionString(config.Connection))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}
	return db, nil
}

// RetryPolicy controls WithRetry. Backoff doubles after every retryable failure, starting at InitialBackoff and
// capped at MaxBackoff.
type RetryPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int
}

var DefaultRetryPolicy = RetryPolicy{
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	MaxRetries:     10,
}

// WithRetry executes a database function, retrying until it either succeeds, encounters a non-retryable error or
// runs out of retries. Network errors and transient postgres errors are retryable.
func WithRetry(ctx context.Context, policy RetryPolicy, executeDb func() error) error {
	backOff := policy.InitialBackoff
	var err error
	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		err = executeDb()
		if err == nil {
			return nil
		}
		if !flowlenserrors.IsNetworkError(err) && !flowlenserrors.IsRetryablePostgresError(err) {
			// Non retryable error
			return err
		}
		log.Warnf("Retryable error encountered executing sql, will wait for %s before retrying.  Error was %v", backOff, err)
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-time.After(backOff):
		}
		backOff = min(2*backOff, policy.MaxBackoff)
	}
	return errors.WithStack(&flowlenserrors.ErrMaxRetriesExceeded{
		Message:   fmt.Sprintf("gave up running database query after %d retries", policy.MaxRetries),
		LastError: err,
	})
}
