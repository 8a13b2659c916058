package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kamusis/opsroute/internal/audit"
	"github.com/kamusis/opsroute/internal/catalog"
	"github.com/kamusis/opsroute/internal/config"
	"github.com/kamusis/opsroute/internal/embeddings"
	"github.com/kamusis/opsroute/internal/executor"
	"github.com/kamusis/opsroute/internal/index"
	"github.com/kamusis/opsroute/internal/router"
	"github.com/kamusis/opsroute/internal/service"
)

// app is the composition root shared by the commands that serve requests.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	catalog  *catalog.Catalog
	provider embeddings.Provider
	index    *index.Index
	router   *router.Router
	registry *executor.Registry
	executor *executor.Executor
	recorder *audit.Recorder
	service  *service.Service
}

// loadConfig loads and validates the config selected by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("cannot load config: %w\nRun 'opsroute init' first.", err)
		}
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configPathForDisplay() string {
	if flagConfig != "" {
		return flagConfig
	}
	p, err := config.ConfigPath()
	if err != nil {
		return "n/a"
	}
	return p
}

// descriptors converts configured actions to executor descriptors.
func descriptors(cfg *config.Config) []executor.Descriptor {
	out := make([]executor.Descriptor, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		out = append(out, executor.Descriptor{
			ID:          a.ID,
			Interpreter: a.Interpreter,
			Args:        a.Args,
			Path:        a.Path,
		})
	}
	return out
}

func newRegistry(cfg *config.Config) (*executor.Registry, error) {
	reg, err := executor.NewRegistry(cfg.ActionsRoot, descriptors(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return reg, nil
}

func newProvider(ctx context.Context, cfg *config.Config) (embeddings.Provider, error) {
	embCfg, err := embeddings.LoadConfig(cfg.Embeddings)
	if err != nil {
		return nil, err
	}
	return embeddings.NewFromConfig(ctx, embCfg)
}

// bootstrap builds every component. tweak, when set, adjusts the validated
// config before anything is constructed. Index build failures are fatal.
func bootstrap(cmd *cobra.Command, tweak func(*config.Config)) (*app, error) {
	ctx := cmd.Context()
	logger := loggerFrom(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if tweak != nil {
		tweak(cfg)
	}

	cat, err := catalog.New(cfg.Intents)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	reg, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	prov, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	buildCtx, cancel := context.WithTimeout(ctx, cfg.Router.EmbedTimeout.Std()+30*time.Second)
	defer cancel()
	start := time.Now()
	idx, err := index.Build(buildCtx, cat.Entries(), prov)
	if err != nil {
		return nil, fmt.Errorf("cannot build intent index with %s: %w", prov.ModelID(), err)
	}
	logger.Info("intent index ready",
		zap.Int("intents", idx.Len()),
		zap.Int("dim", idx.Dim()),
		zap.String("model", idx.ModelID()),
		zap.Duration("took", time.Since(start)))

	a := &app{
		cfg:      cfg,
		log:      logger,
		catalog:  cat,
		provider: prov,
		index:    idx,
		registry: reg,
	}
	a.router = router.New(idx, prov, router.Options{
		MaxDistance:  cfg.Router.MaxDistance,
		EmbedTimeout: cfg.Router.EmbedTimeout.Std(),
	}, logger)
	a.executor = executor.New(reg, executor.Options{
		Timeout:        cfg.Executor.Timeout.Std(),
		KillGrace:      cfg.Executor.KillGrace.Std(),
		MaxOutputBytes: cfg.Executor.MaxOutputBytes,
		EnvAllow:       cfg.Executor.EnvAllow,
	}, logger)
	a.recorder = newRecorder(ctx, cfg, logger)
	a.service = service.New(a.router, a.executor, a.recorder, logger)
	return a, nil
}

// newRecorder opens the configured audit sinks. A sink that cannot be opened
// is logged and skipped.
func newRecorder(ctx context.Context, cfg *config.Config, logger *zap.Logger) *audit.Recorder {
	var sinks []audit.Sink
	if cfg.Audit.DBPath != "" {
		store, err := audit.OpenSQLite(ctx, cfg.Audit.DBPath)
		if err != nil {
			logger.Warn("history database disabled", zap.String("path", cfg.Audit.DBPath), zap.Error(err))
		} else {
			sinks = append(sinks, store)
		}
	}
	if cfg.Audit.LogPath != "" {
		fs, err := audit.NewFileSink(cfg.Audit.LogPath)
		if err != nil {
			logger.Warn("execution log disabled", zap.String("path", cfg.Audit.LogPath), zap.Error(err))
		} else {
			sinks = append(sinks, fs)
		}
	}
	if len(sinks) == 0 {
		return nil
	}
	return audit.NewRecorder(cfg.Audit.Buffer, logger, sinks...)
}

// Close flushes audit records.
func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		a.log.Warn("closing audit sinks", zap.Error(err))
	}
}
