package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/webchat/internal/logger"
)

// ShutdownContext returns a context that is cancelled when parent ends or the
// process receives SIGINT or SIGTERM. The returned cancel stops the watcher.
func ShutdownContext(parent context.Context, service string, log logger.Logger) (context.Context, context.CancelFunc) {
	if service == "" {
		service = "service"
	}
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-ctx.Done():
			log.Debug("context cancelled, shutting down", logger.String("service", service))
		case sig := <-sigCh:
			log.Info("received signal, shutting down",
				logger.String("service", service), logger.String("signal", sig.String()))
			cancel()
		}
	}()
	return ctx, cancel
}
