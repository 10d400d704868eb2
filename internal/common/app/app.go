package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
)

// CreateContextWithShutdown returns a context that will report done when a SIGTERM or SIGINT is received
func CreateContextWithShutdown() *flowlenscontext.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			log.Infof("Received %s; shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return flowlenscontext.New(ctx, log.NewEntry(log.StandardLogger()))
}
