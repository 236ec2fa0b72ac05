package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/docbrief/internal/assets"
	"github.com/MimeLyc/docbrief/internal/config"
	"github.com/MimeLyc/docbrief/internal/export"
	"github.com/MimeLyc/docbrief/internal/extract"
	"github.com/MimeLyc/docbrief/internal/httpapi"
	"github.com/MimeLyc/docbrief/internal/pipeline"
	"github.com/MimeLyc/docbrief/internal/retention"
	"github.com/MimeLyc/docbrief/internal/speech"
	"github.com/MimeLyc/docbrief/internal/store"
	"github.com/MimeLyc/docbrief/internal/summarize"
	"github.com/MimeLyc/docbrief/internal/watcher"
	"github.com/MimeLyc/docbrief/pkg/log"
)

func main() {
	_ = godotenv.Load()

	settingsPath := config.RuntimeSettingsFilePath()
	var opts []config.Option
	if settings, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithRuntimeSettings(settings))
	} else if !os.IsNotExist(err) {
		log.Warn("ignoring settings file %s: %v", settingsPath, err)
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		log.Fatal("failed to load configuration: %v", err)
	}

	db, err := store.NewSQLiteStore(cfg.Storage.DBPath())
	if err != nil {
		log.Fatal("failed to open store: %v", err)
	}
	defer db.Close()

	blobs, err := assets.NewStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatal("failed to prepare data directory: %v", err)
	}

	registry := extract.DefaultRegistry(cfg.Pipeline.PDFToTextBin)

	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		Store:             db,
		Extractor:         registry,
		Summarizer:        buildSummarizer(cfg),
		Synthesizer:       buildSynthesizer(cfg),
		Audio:             blobs,
		Transcript:        export.WriteTranscript,
		ExtractTimeout:    time.Duration(cfg.Pipeline.ExtractTimeout) * time.Second,
		SummarizeTimeout:  time.Duration(cfg.Pipeline.SummarizeTimeout) * time.Second,
		SynthesizeTimeout: time.Duration(cfg.Pipeline.SynthesizeTimeout) * time.Second,
	})
	if err != nil {
		log.Fatal("failed to build pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverOpts := []httpapi.Option{}
	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		log.Warn("settings endpoint disabled: %v", err)
	} else {
		serverOpts = append(serverOpts,
			httpapi.WithRuntimeSettingsStore(settingsStore),
			httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
				updated, err := config.NewFromEnv(config.WithRuntimeSettings(next))
				if err != nil {
					return err
				}
				runner.SetSummarizer(buildSummarizer(updated))
				runner.SetSynthesizer(buildSynthesizer(updated))
				return nil
			}),
		)
	}

	server := httpapi.NewServer(runner, db, blobs, serverOpts...)

	scheduler := cron.New()
	sweeper := retention.NewSweeper(db, blobs, cfg.Retention.Days)
	if err := sweeper.Schedule(ctx, scheduler, cfg.Retention.CronExpr); err != nil {
		log.Fatal("failed to schedule retention sweep: %v", err)
	}
	scheduler.Start()

	if cfg.Storage.WatchDir != "" {
		w, err := watcher.New(cfg.Storage.WatchDir, registry.Supports,
			watcher.NewIngestHandler(db, blobs, runner), 2)
		if err != nil {
			log.Fatal("failed to watch %s: %v", cfg.Storage.WatchDir, err)
		}
		defer w.Stop()
		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("document watcher exited: %v", err)
			}
		}()
	}

	go func() {
		log.Info("listening on %s", cfg.Storage.HTTPAddr)
		if err := server.ListenAndServe(cfg.Storage.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown: %v", err)
	}
	<-scheduler.Stop().Done()
	runner.Wait()
}

// buildSummarizer picks the backend by provider. A nil return means brief
// creation is rejected until a credential arrives through settings.
func buildSummarizer(cfg *config.Config) pipeline.Summarizer {
	switch cfg.LLM.Provider {
	case "gemini":
		client, err := summarize.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			log.Warn("gemini summarizer unavailable: %v", err)
			return nil
		}
		return client
	default:
		if cfg.LLM.APIKey == "" {
			log.Warn("no summarizer credential configured, briefs will be rejected")
			return nil
		}
		client, err := summarize.NewClient(&summarize.Config{
			APIKey:      cfg.LLM.APIKey,
			APIURL:      cfg.LLM.APIURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			SiteURL:     cfg.LLM.SiteURL,
			AppName:     cfg.LLM.AppName,
		})
		if err != nil {
			log.Warn("summarizer unavailable: %v", err)
			return nil
		}
		return client
	}
}

// buildSynthesizer returns nil when speech is not configured, which makes
// completed briefs carry placeholder audio.
func buildSynthesizer(cfg *config.Config) pipeline.Synthesizer {
	client, err := speech.NewClient(speech.Config{
		APIKey:  cfg.TTS.APIKey,
		APIURL:  cfg.TTS.APIURL,
		VoiceID: cfg.TTS.VoiceID,
		Timeout: cfg.TTS.Timeout,
	})
	if err != nil {
		if !errors.Is(err, speech.ErrUnavailable) {
			log.Warn("speech synthesis unavailable: %v", err)
		}
		return nil
	}
	return client
}
