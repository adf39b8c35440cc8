package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"infraforge/internal/cloud"
	"infraforge/internal/config"
	"infraforge/internal/database"
	"infraforge/internal/llm"
	"infraforge/internal/logging"
	"infraforge/internal/memory"
	"infraforge/internal/operations"
	"infraforge/internal/pipeline"
	"infraforge/internal/repositories"
	"infraforge/internal/server"
	"infraforge/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments configure through the environment.
	_ = utils.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.Init(database.Config{
		Path:     cfg.Database.Path,
		LogLevel: gormlogger.Warn,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	projects := repositories.NewProjectRepository(db)
	generations := repositories.NewGenerationRepository(db)
	opLogs := repositories.NewOperationLogRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	generator, err := llm.NewClientForProvider(ctx, cfg.LLM.Provider, cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("failed to build %s client: %w", cfg.LLM.Provider, err)
	}

	store := memory.NewStore()
	driver := pipeline.NewDriver(pipeline.DriverConfig{
		Store:         store,
		Generations:   generations,
		Projects:      projects,
		Stages:        pipeline.DefaultStages(generator, pipeline.NewGitWorkspace()),
		Retries:       cfg.Pipeline.Retries,
		WorkRoot:      cfg.Workspace.Root,
		Retention:     cfg.Operations.RetentionWindow,
		SweepInterval: cfg.Operations.ReaperInterval,
		Logger:        logger,
	})
	driver.StartRetention(ctx)

	registry := operations.NewRegistry(time.Now)
	runner := operations.NewRunner(operations.RunnerConfig{
		Registry:         registry,
		Sandbox:          operations.NewLocalSandbox(),
		Broker:           cloud.EnvBroker{Region: cfg.Cloud.Region},
		OperationLogs:    opLogs,
		Projects:         projects,
		ExecutionCeiling: cfg.Operations.ExecutionCeiling,
		Logger:           logger,
	})
	reaper := operations.NewReaper(operations.ReaperConfig{
		Registry:         registry,
		Runner:           runner,
		RetentionWindow:  cfg.Operations.RetentionWindow,
		ExecutionCeiling: cfg.Operations.ExecutionCeiling,
		Interval:         cfg.Operations.ReaperInterval,
		Logger:           logger,
	})
	reaper.Start(ctx)

	opsService := operations.NewService(operations.ServiceConfig{
		Registry:    registry,
		Runner:      runner,
		Projects:    projects,
		Generations: generations,
		WorkRoot:    cfg.Workspace.Root,
		Logger:      logger,
	})

	srv := server.New(server.Config{
		Addr:        cfg.HTTP.Addr,
		Driver:      driver,
		Operations:  opsService,
		Projects:    projects,
		Generations: generations,
		OpLogs:      opLogs,
		Logger:      logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
