package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/annotate/internal/checkpoint"
	"github.com/timmy/annotate/internal/config"
	"github.com/timmy/annotate/internal/logger"
	"github.com/timmy/annotate/internal/repository"
	"github.com/timmy/annotate/internal/service"
	"github.com/timmy/annotate/internal/storage"
)

const usage = `Usage: annotate images -mode generate|commit [flags]

Modes:
  generate  annotate every image not yet in the checkpoint file
  commit    apply the reviewed checkpoint file to the media database

Flags:
`

func main() {
	appLogger := logger.NewFromEnv(logger.LoadFromEnv("annotate"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	if len(os.Args) < 2 || os.Args[1] != "images" {
		fmt.Fprint(os.Stderr, usage)
		newImagesFlags().fs.PrintDefaults()
		os.Exit(2)
	}

	flags := newImagesFlags()
	flags.fs.Parse(os.Args[2:])

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	flags.apply(&cfg.Annotate)

	generate := flags.mode == "generate"
	if !generate && flags.mode != "commit" {
		appLogger.Fatalf("Unknown mode %q (want generate or commit)", flags.mode)
	}
	if err := cfg.Annotate.Validate(generate); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	// Interrupts cancel the context; rows already appended stay on disk
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
		BaseURL:   cfg.Storage.BaseURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	imageRepo := repository.NewImageRepository(db, objectStorage, cfg.Annotate.Size)
	store := checkpoint.New(cfg.Annotate.OutputDir, cfg.Annotate.CheckpointFile)

	if generate {
		runGenerate(ctx, appLogger, cfg, store, imageRepo, objectStorage)
		return
	}
	runCommit(ctx, appLogger, store, imageRepo)
}

type imagesFlags struct {
	fs         *flag.FlagSet
	mode       string
	configPath string
	output     string
	size       string
	publish    bool
	prompts    map[string]*string
}

func newImagesFlags() *imagesFlags {
	f := &imagesFlags{
		fs:      flag.NewFlagSet("images", flag.ExitOnError),
		prompts: make(map[string]*string),
	}
	f.fs.StringVar(&f.mode, "mode", "generate", "Phase to run: generate or commit")
	f.fs.StringVar(&f.configPath, "config", "", "Path to config file")
	f.fs.StringVar(&f.output, "output", "", "Directory holding the checkpoint file")
	f.fs.StringVar(&f.size, "size", "", "Image rendition sent to the model: original, large, medium or small")
	f.fs.BoolVar(&f.publish, "publish", false, "Upload the checkpoint to object storage after generation")
	for _, kind := range []string{"alt", "description", "caption", "title"} {
		f.prompts[kind] = f.fs.String(kind, "", fmt.Sprintf("Prompt for %s text; false disables it", kind))
	}
	return f
}

// apply copies explicitly set flags over the loaded configuration.
func (f *imagesFlags) apply(cfg *config.AnnotateConfig) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "output":
			cfg.OutputDir = f.output
		case "size":
			cfg.Size = f.size
		case "publish":
			cfg.Publish = f.publish
		case "alt":
			cfg.Prompts.Alt = *f.prompts["alt"]
		case "description":
			cfg.Prompts.Description = *f.prompts["description"]
		case "caption":
			cfg.Prompts.Caption = *f.prompts["caption"]
		case "title":
			cfg.Prompts.Title = *f.prompts["title"]
		}
	})
}

func runGenerate(ctx context.Context, log *logger.Logger, cfg *config.Config, store *checkpoint.Store, catalog service.Catalog, objectStorage storage.ObjectStorage) {
	model := service.NewModelClient(&service.ModelConfig{
		BaseURL: cfg.VLM.BaseURL,
		Model:   cfg.VLM.Model,
		Timeout: cfg.VLM.Timeout,
	})

	runnerCfg := &service.RunnerConfig{Prompts: cfg.Annotate.PromptSet()}
	if cfg.Annotate.Publish {
		runnerCfg.Publisher = objectStorage
	}

	log.WithFields(logger.Fields{
		"model":    model.Model(),
		"endpoint": model.Endpoint(),
		"size":     cfg.Annotate.Size,
		"output":   store.Path(),
	}).Info("Starting annotation run")

	_, err := service.NewRunner(store, catalog, model, runnerCfg, log).Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Warn("Interrupted; completed rows are saved, run again to resume")
		logger.Sync()
		os.Exit(130)
	case errors.Is(err, service.ErrModelUnavailable):
		log.WithError(err).Fatalf("Model request failed; is the model server running at %s with model %q pulled?", model.Endpoint(), model.Model())
	case errors.Is(err, service.ErrImageFetch):
		log.WithError(err).Fatal("Could not download an image; check storage.base_url or the storage credentials")
	case errors.Is(err, checkpoint.ErrLocked):
		log.WithError(err).Fatal("Another annotate run is using this checkpoint")
	default:
		log.WithError(err).Fatal("Annotation run failed")
	}
}

func runCommit(ctx context.Context, log *logger.Logger, store *checkpoint.Store, records service.RecordStore) {
	stats, err := service.NewCommitter(store, records, log).Commit(ctx)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		log.WithError(err).Fatalf("No checkpoint at %s; run -mode generate first", store.Path())
	case errors.Is(err, checkpoint.ErrLocked):
		log.WithError(err).Fatal("Another annotate run is using this checkpoint")
	default:
		log.WithError(err).Fatal("Commit failed")
	}

	if stats.FailedWrites > 0 {
		log.WithField(logger.FieldCount, stats.FailedWrites).Warn("Some writes failed; fix them and run commit again")
		logger.Sync()
		os.Exit(1)
	}
}
