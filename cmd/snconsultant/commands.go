package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
	"github.com/mailsabhi2007/SNConsultant/internal/agent/providers"
	"github.com/mailsabhi2007/SNConsultant/internal/cache"
	"github.com/mailsabhi2007/SNConsultant/internal/config"
	"github.com/mailsabhi2007/SNConsultant/internal/embeddings"
	"github.com/mailsabhi2007/SNConsultant/internal/embeddings/openai"
	"github.com/mailsabhi2007/SNConsultant/internal/multiagent"
	"github.com/mailsabhi2007/SNConsultant/internal/observability"
	"github.com/mailsabhi2007/SNConsultant/internal/servicenow"
	"github.com/mailsabhi2007/SNConsultant/internal/storage"
	"github.com/mailsabhi2007/SNConsultant/internal/tools"
	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// buildChatCmd creates the "chat" command: an interactive session against
// the multi-agent engine.
func buildChatCmd(configPath *string) *cobra.Command {
	var (
		userID      string
		docsDir     string
		contextDir  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive consulting session",
		Example: `  # Start a chat session
  snconsultant chat --user alice

  # With local document directories for the search tools
  snconsultant chat --docs ./docs --context ./client-docs

  # With Prometheus metrics exposed on a debug port
  snconsultant chat --metrics-addr localhost:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, userID, docsDir, contextDir, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "local", "User ID for cache scoping and preferences")
	cmd.Flags().StringVar(&docsDir, "docs", "", "Directory of public documentation files")
	cmd.Flags().StringVar(&contextDir, "context", "", "Directory of client-internal documents")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (disabled when empty)")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, userID, docsDir, contextDir, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics, registry := observability.NewMetrics()
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn(ctx, "Metrics server stopped", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		DefaultModel:    cfg.LLM.Model,
		ClassifierModel: cfg.LLM.ClassifierModel,
		MaxTokens:       cfg.LLM.MaxTokens,
		MaxRetries:      cfg.LLM.MaxRetries,
	})
	if err != nil {
		return err
	}

	store, err := storage.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	var responseCache *cache.Store
	if cfg.Cache.Enabled && cfg.Embeddings.APIKey != "" {
		embedder, err := openai.New(openai.Config{
			APIKey: cfg.Embeddings.APIKey,
			Model:  cfg.Embeddings.Model,
		})
		if err == nil {
			responseCache, err = cache.Open(cfg.Cache.Path, embedder, cache.Options{
				Threshold: cfg.Cache.Threshold,
			})
		}
		if err != nil {
			logger.Warn(ctx, "Semantic cache disabled", "error", err)
			responseCache = nil
		} else {
			defer responseCache.Close()
		}
	}

	toolRegistry := buildRegistry(cfg, store, userID, docsDir, contextDir)

	engine, err := multiagent.NewEngine(multiagent.EngineOptions{
		Provider: provider,
		Registry: toolRegistry,
		Guard: multiagent.GuardConfig{
			Lookback:   cfg.Agents.GuardLookback,
			MaxRepeats: cfg.Agents.GuardMaxRepeat,
		},
		MaxSteps: cfg.Agents.MaxSteps,
		Cache:    responseCache,
		CacheTTL: cfg.Cache.TTLDays,
		Model:    cfg.LLM.Model,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	conv := &models.Conversation{UserID: userID, Title: "CLI session"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	ctx = context.WithValue(ctx, observability.ConversationIDKey, conv.ID)
	ctx = context.WithValue(ctx, observability.UserIDKey, userID)

	fmt.Println("ServiceNow consulting assistant. Type your question, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	permissionGranted := false

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if ctx.Err() != nil {
			break
		}

		history, err := store.History(ctx, conv.ID, 0)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		handoffs, err := store.Handoffs(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("load handoffs: %w", err)
		}
		priorHandoffs := make([]models.HandoffRecord, len(handoffs))
		for i, h := range handoffs {
			priorHandoffs[i] = *h
		}

		// The caller persists the user message before invocation.
		userMsg := &models.Message{Role: models.RoleUser, Content: line}
		if err := store.AppendMessage(ctx, conv.ID, userMsg); err != nil {
			return fmt.Errorf("persist message: %w", err)
		}

		result, err := engine.Invoke(ctx, &multiagent.InvokeRequest{
			ConversationID:    conv.ID,
			UserID:            userID,
			Message:           line,
			History:           history,
			HandoffHistory:    priorHandoffs,
			PermissionGranted: permissionGranted,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error(ctx, "Turn failed", "error", err)
			fmt.Println("Something went wrong, please try again.")
			continue
		}
		permissionGranted = result.PermissionGranted

		if result.IsCached {
			fmt.Printf("[cached, similarity %.2f]\n", result.Similarity)
		} else {
			fmt.Printf("[%s]\n", result.CurrentAgent)
		}
		fmt.Println(result.ResponseText)

		// Persist the assistant reply and any handoffs after invocation.
		assistant := &models.Message{
			Role:    models.RoleAssistant,
			Content: result.ResponseText,
			Metadata: map[string]any{
				"agent":  result.CurrentAgent,
				"cached": result.IsCached,
			},
		}
		if err := store.AppendMessage(ctx, conv.ID, assistant); err != nil {
			logger.Error(ctx, "Failed to persist reply", "error", err)
		}
		for i := range result.HandoffHistory {
			if err := store.RecordHandoff(ctx, conv.ID, &result.HandoffHistory[i]); err != nil {
				logger.Error(ctx, "Failed to persist handoff", "error", err)
			}
		}
	}
	return scanner.Err()
}

// buildRegistry wires the tool set. Live-instance tools are registered
// whether or not credentials exist; without them they report that the
// instance is not configured.
func buildRegistry(cfg *config.Config, store storage.Store, userID, docsDir, contextDir string) *agent.ToolRegistry {
	registry := agent.NewToolRegistry()

	searcher := tools.NewLocalSearcher(docsDir, contextDir)
	registry.Register(tools.NewPublicDocsTool(searcher))
	registry.Register(tools.NewUserContextTool(searcher))
	registry.Register(tools.NewSavePreferenceTool(store, userID))

	// A missing instance configuration still registers the tools; they
	// report the misconfiguration as tool output when called.
	snClient, err := servicenow.NewClient(servicenow.Config{
		InstanceURL: cfg.ServiceNow.InstanceURL,
		Username:    cfg.ServiceNow.Username,
		Password:    cfg.ServiceNow.Password,
	})
	if err != nil {
		snClient = nil
	}
	registry.Register(tools.NewLiveInstanceTool(snClient))
	registry.Register(tools.NewTableSchemaTool(snClient))
	registry.Register(tools.NewRecentChangesTool(snClient))
	registry.Register(tools.NewErrorLogsTool(snClient))

	registry.Register(multiagent.NewHandoffTool(multiagent.DefaultAgents()))
	return registry
}

// buildCacheCmd creates the "cache" command group for maintaining the
// semantic response cache.
func buildCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the semantic response cache",
	}
	cmd.AddCommand(
		buildCacheStatsCmd(configPath),
		buildCacheSweepCmd(configPath),
		buildCachePurgeCmd(configPath),
	)
	return cmd
}

func openCache(configPath string) (*cache.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	// Maintenance commands (stats, sweep, purge) never embed, so a nil
	// embedder is fine when no key is configured.
	var embedder embeddings.Provider
	if cfg.Embeddings.APIKey != "" {
		if p, err := openai.New(openai.Config{
			APIKey: cfg.Embeddings.APIKey,
			Model:  cfg.Embeddings.Model,
		}); err == nil {
			embedder = p
		}
	}
	return cache.Open(cfg.Cache.Path, embedder, cache.Options{Threshold: cfg.Cache.Threshold})
}

func buildCacheStatsCmd(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			var stats cache.Stats
			if userID != "" {
				stats, err = store.UserStats(ctx, userID)
			} else {
				stats, err = store.GlobalStats(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Entries:        %d\n", stats.TotalEntries)
			fmt.Printf("Total hits:     %d\n", stats.TotalHits)
			fmt.Printf("Avg hits/entry: %.2f\n", stats.AvgHits)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Limit stats to one user's entries")
	return cmd
}

func buildCacheSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			n, err := store.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d expired entries\n", n)
			return nil
		},
	}
}

func buildCachePurgeCmd(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all cache entries for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			store, err := openCache(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			n, err := store.PurgeUser(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d entries for user %s\n", n, userID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User whose entries to delete")
	return cmd
}
