package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"slidecast/api"
	"slidecast/assets"
	"slidecast/config"
	"slidecast/ffmpeg"
	"slidecast/pipeline"
	"slidecast/pptx"
	"slidecast/project"
	"slidecast/render"
	"slidecast/script"
	"slidecast/speech"
	"slidecast/storage"
	"slidecast/task"
	"slidecast/timeline"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	var voicesPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, voicesPath)
		},
	}
	cmd.Flags().StringVar(&voicesPath, "voices", "", "YAML voice catalog replacing the built-in one")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, voicesPath string) error {
	logger := newLogger(cfg.LogLevel)

	store, err := project.Open(cfg.CheckpointDir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	encoder, err := ffmpeg.NewRunner(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize encoder: %w", err)
	}
	videoArgs, err := ffmpeg.ParseExtraArgs(cfg.FFVideoArgs)
	if err != nil {
		return fmt.Errorf("FF_VIDEO_ARGS: %w", err)
	}
	builder := timeline.NewBuilder(assets.NewResolver(cfg.FetchTimeout, cfg.MaxInputSize), logger)
	engine := render.NewEngine(builder, encoder, render.Options{VideoArgs: videoArgs, Logger: logger})

	jobs := task.NewManager(cfg, render.Janitor{MaxAge: cfg.WorkdirLifetime}, logger)
	jobs.Start(ctx)

	objects, err := storage.New(ctx, storage.Config{
		Bucket:          cfg.GCSBucket,
		CredentialsFile: cfg.GCSCredentialsFile,
		PublicBase:      cfg.GCSPublicBase,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize object store: %w", err)
	}

	voices := speech.DefaultCatalog()
	if voicesPath != "" {
		if voices, err = speech.LoadCatalog(voicesPath); err != nil {
			return err
		}
	}
	scripts, err := script.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		return fmt.Errorf("initialize script generator: %w", err)
	}

	orch := pipeline.New(pipeline.Deps{
		Store:    store,
		Parser:   pptx.Parser{},
		Scripts:  scripts,
		Speech:   speech.NewClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, logger),
		Voices:   voices,
		Uploader: objects,
		Renderer: engine,
		Runner:   jobs,
	}, pipeline.Options{
		MediaDir: cfg.MediaDir,
		BaseURL:  cfg.BaseURL,
		Logger:   logger,
	})

	router := api.SetupRouter(api.Services{
		Pipeline: orch,
		Jobs:     jobs,
		Voices:   voices,
		Version:  Version,
	}, cfg, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully, press Ctrl+C again to force")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}
	logger.Info("server exiting")
	return nil
}
