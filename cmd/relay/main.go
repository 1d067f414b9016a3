package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/peercall/internal/adapters/http"
	"github.com/dkeye/peercall/internal/app"
	"github.com/dkeye/peercall/internal/app/orch"
	"github.com/dkeye/peercall/internal/config"
	"github.com/dkeye/peercall/internal/logging"
)

// slowStrikes is how many dropped frames in a row a member survives.
const slowStrikes = 3

var configPath string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Development signaling relay for peercall",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(configPath)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	rootCmd.SilenceUsage = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console logger first so config.Load can report what it read.
	logging.Init("info")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.LogLevel)

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(cfg.MaxMembers),
		Policy:   app.NewStrikePolicy(slowStrikes),
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("peercall relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
