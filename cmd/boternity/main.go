// Package main is Boternity's CLI entrypoint: a thin wrapper around the
// chat service and workflow runner. The CLI/TUI surface is explicitly out
// of scope as a UX product (spec.md §1, §6) — this binary exists so the
// module is a runnable program, not a library with no main.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/boternity/boternity/internal/chat"
	"github.com/boternity/boternity/internal/config"
	"github.com/boternity/boternity/internal/memory"
	"github.com/boternity/boternity/internal/providers"
	"github.com/boternity/boternity/internal/runtime"
	"github.com/boternity/boternity/internal/skillexec"
	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/internal/store"
	"github.com/boternity/boternity/internal/workflow"
	"github.com/boternity/boternity/pkg/models"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "boternity",
		Short:        "Boternity - persistent, skill-extensible AI bots",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "boternity.yaml", "path to the Boternity config file")

	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildWorkflowCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat runtime against the configured store and providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}

			db, err := store.Open(cfg.Store.SQLitePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()
			sessionStore := store.NewSessionStore(db)

			var (
				mem       *memory.Manager
				extractor *memory.Extractor
			)
			if cfg.Memory.Enabled {
				mem, err = memory.NewManager(&cfg.Memory)
				if err != nil {
					return fmt.Errorf("init memory manager: %w", err)
				}
				provider, err := buildProvider(cmd.Context(), cfg.LLM, cfg.LLM.DefaultProvider)
				if err != nil {
					return fmt.Errorf("init memory extraction provider: %w", err)
				}
				extractor = memory.NewExtractor(mem, provider, memory.ExtractionConfig{Model: cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel}, logger)
			}

			svc := chat.New(sessionStore, mem, extractor, logger)
			_ = svc

			logger.Info("boternity serve starting", "store_path", cfg.Store.SQLitePath, "memory_enabled", cfg.Memory.Enabled)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
}

func buildWorkflowCmd() *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect and run workflow definitions",
	}
	workflowCmd.AddCommand(buildWorkflowRunCmd())
	return workflowCmd
}

func buildWorkflowRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <definition.yaml>",
		Short: "Execute a single workflow definition against the DAG runner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}

			def, err := workflow.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("load workflow definition: %w", err)
			}
			if err := workflow.Validate(def); err != nil {
				return fmt.Errorf("invalid workflow definition: %w", err)
			}

			db, err := store.Open(cfg.Store.SQLitePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			repo := store.NewWorkflowStore(db)
			checkpoints := workflow.NewCheckpointManager(repo, logger)

			skillsMgr, err := skills.NewManager(&cfg.Skills, ".", nil)
			if err != nil {
				return fmt.Errorf("init skills manager: %w", err)
			}
			if err := skillsMgr.Discover(cmd.Context()); err != nil {
				return fmt.Errorf("discover skills: %w", err)
			}
			if err := skillsMgr.RefreshEligible(); err != nil {
				return fmt.Errorf("refresh eligible skills: %w", err)
			}

			provs, err := buildProviders(cmd.Context(), cfg.LLM)
			if err != nil {
				return fmt.Errorf("init providers: %w", err)
			}
			bots := runtime.NewBotRegistry("bots", cfg.LLM, provs)
			skillLookup := runtime.NewSkillRegistry(skillsMgr, nil)
			dispatcher := skillexec.NewDispatcher(logger)
			executor := workflow.NewLiveStepExecutor(bots, skillLookup, dispatcher, nil)

			runner := workflow.NewRunner(checkpoints, executor, nil, logger)

			runID := uuid.New()
			run := &models.WorkflowRun{
				ID: runID, WorkflowID: def.ID, WorkflowName: def.Name,
				Status: models.WorkflowRunRunning, StartedAt: time.Now(),
			}
			if err := repo.CreateRun(cmd.Context(), run); err != nil {
				return fmt.Errorf("record workflow run: %w", err)
			}

			if _, err := runner.Run(cmd.Context(), def, runID, nil, 0); err != nil {
				return fmt.Errorf("run workflow: %w", err)
			}
			logger.Info("workflow completed", "run_id", runID, "workflow", def.Name)
			return nil
		},
	}
}

func loadConfigAndLogger() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler).With("component", "boternity")
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildProviders constructs one adapter per configured LLM provider,
// keyed by name ("anthropic", "openai", "bedrock"), so a BotRegistry can
// resolve any of them by the name a bot's IDENTITY.md or the config's
// default_provider names.
func buildProviders(ctx context.Context, cfg config.LLMConfig) (map[string]providers.Provider, error) {
	out := make(map[string]providers.Provider, len(cfg.Providers))
	for name := range cfg.Providers {
		provider, err := buildProvider(ctx, cfg, name)
		if err != nil {
			return nil, err
		}
		out[name] = provider
	}
	return out, nil
}

func buildProvider(ctx context.Context, cfg config.LLMConfig, name string) (providers.Provider, error) {
	pc := cfg.Providers[name]
	switch name {
	case "anthropic":
		return providers.NewAnthropicAdapter(providers.AnthropicConfig{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIAdapter(pc.APIKey, pc.DefaultModel)
	case "bedrock":
		return providers.NewBedrockAdapter(ctx, providers.BedrockConfig{
			Region: pc.Region, DefaultModel: pc.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("boternity: unknown llm provider %q", name)
	}
}
