package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jeremywhuff/restify/internal/app"
	"github.com/jeremywhuff/restify/internal/config"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		gin.SetMode(gin.ReleaseMode)
		if cfg.Log.Stages {
			gin.SetMode(gin.DebugMode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           a.Engine,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			errc <- srv.ListenAndServe()
		}()
		pterm.Info.Printfln("Serving %d entities on %s", len(cfg.Entities), cfg.Server.Addr)

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "listening")
			}
			return nil
		case <-ctx.Done():
		}

		pterm.Info.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
