// Package flowlenserrors contains generic errors returned by the import pipeline and helpers used to classify
// errors as retryable, fatal or "no data yet".
//
// If multiple errors occur in some function (e.g., several entities of one batch could not be written), that
// function should return an error of type multierror.Error from package github.com/hashicorp/go-multierror that
// encapsulates those individual errors.
package flowlenserrors

import (
	"context"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "document" or "data source"
	Value   string // Resource name, e.g., "process-instance/123"
	Message string // An optional message to include in the error message
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "pageSize"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
	}
}

// ErrMaxRetriesExceeded is returned when an operation has been retried the maximum number of times and still failed.
type ErrMaxRetriesExceeded struct {
	Message   string
	LastError error
}

func (err *ErrMaxRetriesExceeded) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("exceeded maximum number of retries; last error: %s", err.LastError)
	} else {
		return fmt.Sprintf("exceeded maximum number of retries; %s; last error: %s", err.Message, err.LastError)
	}
}

func (err *ErrMaxRetriesExceeded) Unwrap() error {
	return err.LastError
}

// ErrSourceNotFound is returned by fetchers when the upstream collection a page is read from does not exist yet,
// e.g. a zeebe record table that has not been created by the exporter or an engine that does not serve the endpoint.
// It means "no data yet" rather than a failure.
type ErrSourceNotFound struct {
	DataSource string
	Source     string
}

func (err *ErrSourceNotFound) Error() string {
	return fmt.Sprintf("source %q of data source %q does not exist yet", err.Source, err.DataSource)
}

// IsSourceNotFound returns true if err, or any error it wraps, is an ErrSourceNotFound.
func IsSourceNotFound(err error) bool {
	var e *ErrSourceNotFound
	return errors.As(err, &e)
}

// IsNetworkError returns true if err is a network error, e.g. a refused connection or a broken pipe.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsRetryablePostgresError returns true if err is a postgres error that is expected to go away on its own,
// e.g. a serialization failure, a deadlock or the server being temporarily unavailable.
func IsRetryablePostgresError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch {
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsTransactionRollback(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code),
		pgerrcode.IsOperatorIntervention(pgErr.Code):
		return true
	}
	return false
}

// IsUndefinedTable returns true if err is the postgres error raised when a queried table does not exist.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}

// IsCancellation returns true if err was caused by a context being cancelled or timing out.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
