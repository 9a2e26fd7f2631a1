package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ChuDiRen/casegen/internal/agent"
	"github.com/ChuDiRen/casegen/internal/config"
	"github.com/ChuDiRen/casegen/internal/llm"
	"github.com/ChuDiRen/casegen/internal/pipeline"
	"github.com/ChuDiRen/casegen/internal/prompt"
	"github.com/ChuDiRen/casegen/internal/state"
)

// The database is the pipeline's recorder.
var _ pipeline.Recorder = (*state.DB)(nil)

// newGateway builds the model gateway. Tests replace it.
var newGateway = func(cfg *config.Config) (llm.Gateway, error) {
	key, err := config.GetAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	return llm.NewAnthropicGateway(llm.AnthropicConfig{
		Model:         cfg.Anthropic.Model,
		APIKey:        key,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		Timeout:       cfg.Anthropic.Timeout,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
}

// app holds what every command shares: config, database and prompts.
type app struct {
	cfg     *config.Config
	db      *state.DB
	file    *prompt.FileStore
	prompts prompt.Store
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debugLog {
		cfg.Log.Debug = true
	}
	return cfg, nil
}

// openApp loads the config, opens the database and the prompt file.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := state.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{cfg: cfg, db: db}
	if cfg.Prompts.File != "" {
		load := prompt.LoadFile
		if cfg.Prompts.Watch {
			load = prompt.WatchFile
		}
		fs, err := load(cfg.Prompts.File)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		a.file = fs
	}

	// Prompts set with 'casegen prompts set' beat the prompt file, which
	// beats the built-in templates.
	stores := []prompt.Store{db}
	if a.file != nil {
		stores = append(stores, a.file)
	}
	a.prompts = prompt.Chain(append(stores, prompt.Defaults())...)
	return a, nil
}

func (a *app) Close() {
	if a.file != nil {
		a.file.Close()
	}
	if err := a.db.Close(); err != nil {
		log.Printf("[casegen] close database: %v", err)
	}
}

func retryPolicy(rc config.RetryConfig) agent.RetryPolicy {
	p := agent.DefaultRetryPolicy()
	if rc.MaxRetries > 0 {
		p.MaxRetries = rc.MaxRetries
	}
	if rc.RetryDelay > 0 {
		p.RetryDelay = rc.RetryDelay
	}
	return p
}

// factory returns the pipeline factory for this configuration.
func (a *app) factory(gw llm.Gateway, emitter *pipeline.EventEmitter) pipeline.Factory {
	names := []string{agent.NameSupervisor, agent.NameAnalyzer, agent.NameDesigner, agent.NameWriter, agent.NameReviewer}
	perAgent := make(map[string]agent.RetryPolicy, len(names))
	for _, name := range names {
		perAgent[name] = retryPolicy(a.cfg.RetryFor(name))
	}

	fc := pipeline.FactoryConfig{
		Gateway:    gw,
		Prompts:    a.prompts,
		PassScore:  a.cfg.Pipeline.PassScore,
		Retry:      retryPolicy(a.cfg.RetryFor(config.DefaultAgent)),
		AgentRetry: perAgent,
		Recorder:   a.db,
		Emitter:    emitter,
		MaxSteps:   a.cfg.Pipeline.MaxSteps,
	}
	if a.cfg.Log.Debug {
		fc.LogDir = config.LogDir()
	}
	return pipeline.NewFactory(fc)
}

// taskConfig fills unset task fields from the pipeline config.
func (a *app) taskConfig(tc pipeline.TaskConfig) pipeline.TaskConfig {
	if tc.TaskType == "" {
		tc.TaskType = a.cfg.Pipeline.TaskType
	}
	if tc.MaxIterations <= 0 {
		tc.MaxIterations = a.cfg.Pipeline.MaxIterations
	}
	return tc.Normalize()
}

// redirectLog sends operational logs to a file while a full screen view is up.
// It returns a function restoring stderr.
func redirectLog() func() {
	dir := config.DataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "casegen.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return func() {}
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Println("[casegen] received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
