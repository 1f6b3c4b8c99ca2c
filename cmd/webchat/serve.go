package main

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/internal/runtime"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*cfgPath)
			if err != nil {
				return err
			}
			log = log.With(logger.Component("webchat"))

			ctx, cancel := runtime.ShutdownContext(cmd.Context(), "webchat", log)
			defer cancel()

			app, err := runtime.BuildApp(ctx, cfg, version, log)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				if err := app.Close(closeCtx); err != nil {
					log.Warn("close", logger.Error(err))
				}
			}()

			if serveAddr == "" {
				serveAddr = cfg.Server.Address
			}
			return app.Run(ctx, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.address)")

	return serve
}
