package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tenderscout/tenderscout/internal/auth"
	"github.com/tenderscout/tenderscout/internal/evalcache"
	"github.com/tenderscout/tenderscout/internal/logger"
	"github.com/tenderscout/tenderscout/internal/pipeline"
	"github.com/tenderscout/tenderscout/internal/secrets"
	"github.com/tenderscout/tenderscout/internal/semantic"
	"github.com/tenderscout/tenderscout/internal/storage"
	"github.com/tenderscout/tenderscout/internal/ungm"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptReportByAgency = "Report by agencies"
	PromptNoticesToFile  = "Dump stored notices to file"
	PromptExit           = "Exit"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptReportByAgency, PromptNoticesToFile, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one retrieval and scoring pass over the catalog",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("days", 0, "override the search window in days")
	runCmd.Flags().BoolP("auto-approve", "y", false, "print the report and exit without prompting")
	runCmd.Flags().Bool("store-all", false, "persist every evaluated notice regardless of thresholds")

	viper.BindPFlag("search.days", runCmd.Flags().Lookup("days"))
	viper.BindPFlag("scoring.store-all", runCmd.Flags().Lookup("store-all"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger = logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("starting the tenderscout", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	a, err := newApp(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the run", zap.Error(err))
	}
	defer a.Close()

	result, err := a.runOnce(ctx)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	logger.Info("run complete",
		zap.Int("searched", result.Searched),
		zap.Int("skipped", result.Skipped),
		zap.Int("filtered", result.Filtered),
		zap.Int("failed", result.Failed),
		zap.Int("stored", len(result.Stored)),
	)

	if len(result.Stored) == 0 {
		logger.Info("exiting", zap.String("reason", "no notices stored"))
		return
	}

	if cmd.Flag("auto-approve").Value.String() == "true" {
		fmt.Println(result.ReportByAgency())
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, result, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(action string, result *pipeline.Result, logger *zap.Logger) error {
	switch action {
	case PromptReportByAgency:
		fmt.Println(result.ReportByAgency())
		return nil
	case PromptNoticesToFile:
		filename, err := result.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// app bundles the wired pipeline with the resources it owns.
type app struct {
	config *Config
	logger *zap.Logger
	pool   *pgxpool.Pool
	pipe   *pipeline.Pipeline
	search ungm.SearchParams
}

func newApp(ctx context.Context, config *Config, logger *zap.Logger) (*app, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Catalog == nil || config.Catalog.APIURL == "" || config.Catalog.TokenURL == "" {
		return nil, errors.New("catalog.api-url and catalog.token-url are required")
	}
	if config.Profile == nil {
		return nil, errors.New("a profile section is required to score notices")
	}
	if config.Scoring == nil {
		config.Scoring = &pipeline.Policy{}
	}

	clientSecret, err := secrets.Load(secrets.Source{
		Name:  "catalog client secret",
		Value: config.Catalog.ClientSecret,
		File:  config.Catalog.ClientSecretFile,
		Env:   "UNGM_CLIENT_SECRET",
	})
	if err != nil {
		return nil, fmt.Errorf("loading catalog credentials: %w", err)
	}

	tokens := auth.NewProvider(auth.Config{
		TokenURL:     config.Catalog.TokenURL,
		ClientID:     config.Catalog.ClientID,
		ClientSecret: clientSecret,
		Scope:        config.Catalog.Scope,
	}, logger)

	catalog := ungm.New(config.Catalog.APIURL, tokens, logger)
	if config.UserAgent != "" {
		catalog.UserAgent = config.UserAgent
	}

	databaseURL, err := resolveDatabaseURL(config)
	if err != nil {
		return nil, err
	}

	pool, err := storage.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to the database: %w", err)
	}

	repo := storage.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	cache := evalcache.New(pool, config.Database.SkipWindow, logger)
	if err := cache.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	matcher, err := newMatcher(ctx, config.Semantic, logger)
	if err != nil {
		// Semantic scoring degrades to structured-only, never blocks a run.
		logger.Warn("semantic matching disabled", zap.Error(err))
		matcher = nil
	}

	search := ungm.SearchParams{}
	if config.Search != nil {
		search = *config.Search
	}

	pipe := pipeline.New(catalog, cache, matcher, repo, config.Profile, *config.Scoring, logger)

	return &app{
		config: config,
		logger: logger,
		pool:   pool,
		pipe:   pipe,
		search: search,
	}, nil
}

func (a *app) runOnce(ctx context.Context) (*pipeline.Result, error) {
	a.logger.Info("starting the search", zap.Int("days", a.search.Days))
	return a.pipe.Run(ctx, a.search)
}

func (a *app) Close() {
	a.pool.Close()
}

func resolveDatabaseURL(config *Config) (string, error) {
	if config.Database == nil {
		return "", errors.New("a database section is required to persist notices")
	}

	return secrets.Load(secrets.Source{
		Name:  "database url",
		Value: config.Database.URL,
		File:  config.Database.URLFile,
		Env:   "TENDERSCOUT_DATABASE_URL",
	})
}

// newMatcher wires the embedding client and the vector index. A disabled or
// incomplete semantic section returns a pipeline.Matcher-typed nil, which the
// pipeline treats as "structured scoring only".
func newMatcher(ctx context.Context, config *SemanticConfig, logger *zap.Logger) (pipeline.Matcher, error) {
	if config == nil || !config.Enabled {
		return nil, errors.New("semantic section is missing or disabled")
	}

	if config.IndexURL == "" {
		return nil, errors.New("semantic.index-url is required when semantic matching is enabled")
	}

	geminiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.GeminiAPIKey,
		File:  config.GeminiAPIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	indexKey, err := secrets.Load(secrets.Source{
		Name:  "vector index api key",
		Value: config.IndexAPIKey,
		File:  config.IndexAPIKeyFile,
		Env:   "VECTOR_INDEX_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	embedder, err := semantic.NewGeminiEmbedder(ctx, geminiKey, config.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("building embedding client: %w", err)
	}

	index := semantic.NewIndexClient(strings.TrimRight(config.IndexURL, "/"), indexKey, config.Namespace)

	return semantic.NewMatcher(embedder, index, config.TopK, logger), nil
}
