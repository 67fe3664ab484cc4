package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/revisionhiep-create/Project-Astral/internal/config"
	"github.com/revisionhiep-create/Project-Astral/internal/embedding"
	"github.com/revisionhiep-create/Project-Astral/internal/generate"
	"github.com/revisionhiep-create/Project-Astral/internal/logging"
	"github.com/revisionhiep-create/Project-Astral/internal/persona"
	"github.com/revisionhiep-create/Project-Astral/internal/pipeline"
	"github.com/revisionhiep-create/Project-Astral/internal/platform"
	"github.com/revisionhiep-create/Project-Astral/internal/retrieval"
	"github.com/revisionhiep-create/Project-Astral/internal/router"
	"github.com/revisionhiep-create/Project-Astral/internal/search"
	"github.com/revisionhiep-create/Project-Astral/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "astral",
	Short: "Astral - memory-backed conversational chat bot",
	Long: `Astral is a chat companion with long-term memory.

Every exchange flows through hybrid retrieval over an SQLite fact store,
a small routing model that decides when to search the web, and an
OpenAI-compatible completion backend. Replies are post-processed for
reasoning leakage and generation loops before anything is persisted.

Run without arguments to start a terminal chat session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a chat session on the configured platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Re-embed stored facts with the current embedding model",
	Long: `Migrates stored fact embeddings to the configured model and
dimensionality. Needed after switching embedding providers or dims;
rows already at the current dimension can be skipped.`,
	RunE: runReembed,
}

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Dump stored facts",
	RunE:  runFacts,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete facts older than the retention window",
	RunE:  runPurge,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store row counts",
	RunE:  runStats,
}

var (
	reembedOnlyMissing bool
	factsChannel       string
	factsLimit         int
	purgeOlderThan     time.Duration
	purgeVacuum        bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "astral.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose process logging")

	reembedCmd.Flags().BoolVar(&reembedOnlyMissing, "only-missing", true, "skip rows already at the current dimension")
	factsCmd.Flags().StringVar(&factsChannel, "channel", "", "limit dump to one channel")
	factsCmd.Flags().IntVar(&factsLimit, "limit", 0, "max facts to print (0 = all)")
	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "override the configured retention window")
	purgeCmd.Flags().BoolVar(&purgeVacuum, "vacuum", false, "vacuum the database after purging")

	rootCmd.AddCommand(runCmd, reembedCmd, factsCmd, purgeCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads config and brings up the category logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Logging.Dir, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.New(cfg.Memory.DatabasePath, cfg.Embedding.Dims)
}

func newEngine(cfg *config.Config) (embedding.Engine, error) {
	return embedding.NewEngine(embedding.Config{
		Provider: cfg.Embedding.Provider,
		APIKey:   cfg.Embedding.APIKey,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		Dims:     cfg.Embedding.Dims,
	})
}

// runChat wires the full pipeline and blocks until the session ends.
func runChat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	defer logging.CloseAll()
	if err := logging.InitAudit(); err != nil {
		logger.Warn("audit log unavailable", zap.Error(err))
	}
	defer logging.CloseAudit()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := router.NewRouter(ctx, router.Config{
		APIKey:         cfg.Router.APIKey,
		Model:          cfg.Router.Model,
		DefaultBackend: cfg.Backends.Default,
		Timeout:        cfg.GetRouterTimeout(),
		HeuristicsOnly: cfg.Router.HeuristicsOnly,
	})
	if err != nil {
		return err
	}

	var searcher search.Provider
	if cfg.Search.Enabled {
		switch cfg.Search.Provider {
		case "duckduckgo":
			searcher = search.NewDuckDuckGo("", cfg.Search.MaxResults, cfg.GetSearchTimeout())
		default:
			searcher = search.NewSearXNG(cfg.Search.BaseURL, cfg.Search.MaxResults, cfg.GetSearchTimeout())
		}
	}

	pm, err := persona.NewManager(cfg.Persona.Path, cfg.Bot.Name)
	if err != nil {
		return err
	}
	if cfg.Persona.HotReload {
		if err := pm.Start(ctx); err != nil {
			logger.Warn("persona hot reload unavailable", zap.Error(err))
		} else {
			defer pm.Stop()
		}
	}

	var reranker *retrieval.Reranker
	if cfg.Rerank.Enabled {
		reranker = retrieval.NewReranker(cfg.Rerank.BaseURL, cfg.Rerank.Model, cfg.GetRerankTimeout())
	}

	backends := make(map[string]*generate.Client, len(cfg.Backends.Profiles))
	for name, profile := range cfg.Backends.Profiles {
		backends[name] = generate.NewClient(name, profile, cfg.GetBackendTimeout())
	}

	p := pipeline.New(cfg, pipeline.Deps{
		Store:     st,
		History:   pipeline.StoreHistory(st),
		Memory:    pipeline.NewMemory(st, engine, reranker, cfg.Memory),
		Router:    rt,
		Search:    searcher,
		Persona:   pm,
		Backends:  backends,
		Persistor: pipeline.NewPersistor(st, engine, backends[cfg.Backends.Default], cfg.Bot.Name, cfg.Memory),
	})

	switch cfg.Platform.Kind {
	case "stdio", "":
		surface := platform.NewStdio(cfg.Bot.Name)
		dispatcher := pipeline.NewDispatcher(p, surface)
		defer dispatcher.Close()

		logger.Info("astral ready",
			zap.String("bot", cfg.Bot.Name),
			zap.String("backend", cfg.Backends.Default),
			zap.Bool("search", searcher != nil))
		fmt.Printf("%s is listening. Type a message, /quit to exit.\n", cfg.Bot.Name)

		return surface.Run(ctx, func(m platform.Message) {
			dispatcher.Submit(pipeline.Incoming{
				ChannelID: m.ChannelID,
				MessageID: m.ID,
				UserID:    m.UserID,
				UserName:  m.UserName,
				Content:   m.Content,
			})
		})
	default:
		return fmt.Errorf("unsupported platform kind %q", cfg.Platform.Kind)
	}
}

func runReembed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.CloseAll()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := st.ReembedAll(ctx, engine, reembedOnlyMissing, func(msg string) {
		fmt.Println(msg)
	})
	if err != nil {
		return err
	}
	fmt.Printf("done: %d re-embedded, %d skipped, %d failed\n",
		result.Done, result.Skipped, result.Failed)
	return nil
}

func runFacts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.CloseAll()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var facts []store.Fact
	if factsChannel != "" {
		facts, err = st.FactsByChannel(factsChannel, factsLimit)
	} else {
		facts, err = st.AllFacts()
		if factsLimit > 0 && len(facts) > factsLimit {
			facts = facts[:factsLimit]
		}
	}
	if err != nil {
		return err
	}

	for _, f := range facts {
		fmt.Printf("[%d] %s | %s | %s\n    %s\n",
			f.ID, f.CreatedAt.Format("2006-01-02 15:04"), f.Source, f.UserName, f.Content)
	}
	fmt.Printf("%d facts\n", len(facts))
	return nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.CloseAll()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	age := purgeOlderThan
	if age <= 0 {
		age = cfg.GetMaxFactAge()
	}
	cutoff := time.Now().Add(-age)

	stats, err := st.PurgeOlderThan(cutoff, purgeVacuum)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d facts older than %s (vacuumed=%v)\n",
		stats.FactsDeleted, age, stats.Vacuumed)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.CloseAll()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		return err
	}
	for k, v := range stats {
		fmt.Printf("%-16s %d\n", k, v)
	}
	return nil
}
