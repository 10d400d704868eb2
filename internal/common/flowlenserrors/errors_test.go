package flowlenserrors

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected string
	}{
		"not found with type": {
			err:      &ErrNotFound{Type: "document", Value: "process-instance/1"},
			expected: `resource "process-instance/1" of type "document" does not exist`,
		},
		"not found with message": {
			err:      &ErrNotFound{Value: "engine-2", Message: "not configured"},
			expected: `resource "engine-2" does not exist; not configured`,
		},
		"invalid argument": {
			err:      &ErrInvalidArgument{Name: "pageSize", Value: "0", Message: "must be positive"},
			expected: `value "0" is invalid for field "pageSize"; must be positive`,
		},
		"source not found": {
			err:      &ErrSourceNotFound{DataSource: "zeebe-1", Source: "zeebe_record_incident"},
			expected: `source "zeebe_record_incident" of data source "zeebe-1" does not exist yet`,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestIsSourceNotFound(t *testing.T) {
	err := errors.Wrap(&ErrSourceNotFound{DataSource: "a", Source: "b"}, "fetching page")
	assert.True(t, IsSourceNotFound(err))
	assert.False(t, IsSourceNotFound(fmt.Errorf("boom")))
	assert.False(t, IsSourceNotFound(nil))
}

func TestIsNetworkError(t *testing.T) {
	assert.True(t, IsNetworkError(errors.WithStack(syscall.ECONNREFUSED)))
	assert.True(t, IsNetworkError(&net.OpError{Op: "dial", Err: fmt.Errorf("nope")}))
	assert.False(t, IsNetworkError(fmt.Errorf("some random error")))
	assert.False(t, IsNetworkError(nil))
}

func TestIsRetryablePostgresError(t *testing.T) {
	assert.True(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	assert.True(t, IsRetryablePostgresError(errors.WithStack(&pgconn.PgError{Code: pgerrcode.AdminShutdown})))
	assert.False(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, IsRetryablePostgresError(fmt.Errorf("boom")))
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, IsUndefinedTable(errors.WithStack(&pgconn.PgError{Code: pgerrcode.UndefinedTable})))
	assert.False(t, IsUndefinedTable(&pgconn.PgError{Code: pgerrcode.UndefinedColumn}))
}

func TestMaxRetriesExceededUnwraps(t *testing.T) {
	cause := fmt.Errorf("version conflict")
	err := &ErrMaxRetriesExceeded{Message: "gave up", LastError: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "exceeded maximum number of retries; gave up; last error: version conflict", err.Error())
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, IsCancellation(errors.WithStack(context.Canceled)))
	assert.True(t, IsCancellation(context.DeadlineExceeded))
	assert.False(t, IsCancellation(fmt.Errorf("x")))
}
