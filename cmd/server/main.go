package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	router "github.com/dkeye/Polyglot/internal/adapters/http"
	"github.com/dkeye/Polyglot/internal/adapters/speech"
	"github.com/dkeye/Polyglot/internal/app"
	"github.com/dkeye/Polyglot/internal/app/orch"
	"github.com/dkeye/Polyglot/internal/config"
	"github.com/dkeye/Polyglot/internal/metrics"
	"github.com/dkeye/Polyglot/internal/pipeline"
)

var configPath string

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polyglot",
		Short: "Real-time translated voice rooms",
		Long: `Polyglot serves voice rooms whose audio is transcribed, translated and
re-synthesized for every listener's language.

Configuration is read from config/config.<CONFIG_ENV>.yaml (or --config),
then .env and POLYGLOT_* environment variables, then flags.

Examples:
  polyglot --port 8080
  CONFIG_ENV=prod polyglot --mirror`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (yaml)")
	cmd.Flags().Int("port", 0, "listen port")
	cmd.Flags().Bool("mirror", false, "start with mirror mode on")
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("mirror", cmd.Flags().Lookup("mirror"))
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v, configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	o, err := buildOrchestrator(cfg, m)
	if err != nil {
		log.Error().Err(err).Msg("failed to wire orchestrator")
		return err
	}

	r := router.SetupRouter(ctx, cfg, o, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Polyglot server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error().Err(err).Msg("server error")
		o.Close()
		return err
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// hijacked websocket connections are not covered by Shutdown
	o.Close()
	log.Info().Msg("Server exited gracefully")
	return nil
}

func buildOrchestrator(cfg *config.Config, m *metrics.Metrics) (*orch.Orchestrator, error) {
	collab, err := speech.Build(speech.Config{
		Backend:          cfg.Speech.Backend,
		APIKey:           cfg.Speech.APIKey,
		BaseURL:          cfg.Speech.BaseURL,
		STTModel:         cfg.Speech.STTModel,
		MTModel:          cfg.Speech.MTModel,
		TTSModel:         cfg.Speech.TTSModel,
		Voice:            cfg.Speech.Voice,
		LoopbackFallback: cfg.Speech.Fallback,
		Silence:          cfg.Audio.SilenceRMS,
	}, cfg.Audio.Format())
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(collab, pipeline.Config{
		StageTimeout:    cfg.Pipeline.StageTimeout,
		ConfidenceFloor: cfg.Pipeline.ConfidenceFloor,
	}, m)
	if err != nil {
		return nil, err
	}

	policy, err := app.PolicyByName(cfg.Policy)
	if err != nil {
		return nil, err
	}
	rooms := app.NewRoomManager()
	return orch.New(app.NewRegistry(rooms, policy), rooms, app.NewSettings(cfg.Mirror), p, m, orch.Config{
		Segment:     cfg.Audio.Segment(),
		MaxInFlight: cfg.Pipeline.MaxInFlight,
	})
}
