// Package flowlenscontext provides a context.Context that also carries a logrus entry, so that everything logged
// during an import cycle is tagged with the data source and entity type being imported.
package flowlenscontext

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Log field names used across the importer.
const (
	DataSourceField = "dataSource"
	EntityTypeField = "entityType"
)

type Context struct {
	context.Context
	Log *logrus.Entry
}

// Background is context.Background() with the standard logger.
func Background() *Context {
	return New(context.Background(), logrus.NewEntry(logrus.StandardLogger()))
}

func New(ctx context.Context, log *logrus.Entry) *Context {
	return &Context{Context: ctx, Log: log}
}

// ForImport tags the logger with the data source and entity type of an import.
func ForImport(parent *Context, dataSourceId string, entityType string) *Context {
	return WithLogFields(parent, logrus.Fields{
		DataSourceField: dataSourceId,
		EntityTypeField: entityType,
	})
}

func WithCancel(parent *Context) (*Context, context.CancelFunc) {
	c, cancel := context.WithCancel(parent.Context)
	return parent.derive(c), cancel
}

func WithTimeout(parent *Context, timeout time.Duration) (*Context, context.CancelFunc) {
	c, cancel := context.WithTimeout(parent.Context, timeout)
	return parent.derive(c), cancel
}

// WithoutCancel returns a copy of parent that is not cancelled when parent is, e.g. to let a write in flight finish
// after shutdown was requested.
func WithoutCancel(parent *Context) *Context {
	return parent.derive(context.WithoutCancel(parent.Context))
}

func WithValue(parent *Context, key, val any) *Context {
	return parent.derive(context.WithValue(parent.Context, key, val))
}

func WithLogField(parent *Context, key string, val any) *Context {
	return &Context{Context: parent.Context, Log: parent.Log.WithField(key, val)}
}

func WithLogFields(parent *Context, fields logrus.Fields) *Context {
	return &Context{Context: parent.Context, Log: parent.Log.WithFields(fields)}
}

// ErrGroup is errgroup.WithContext keeping the logger of ctx.
func ErrGroup(ctx *Context) (*errgroup.Group, *Context) {
	group, c := errgroup.WithContext(ctx.Context)
	return group, ctx.derive(c)
}

func (c *Context) derive(ctx context.Context) *Context {
	return &Context{Context: ctx, Log: c.Log}
}
