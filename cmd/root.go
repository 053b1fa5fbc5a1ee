package cmd

import (
	"log"
	"time"

	"github.com/tenderscout/tenderscout/internal/pipeline"
	"github.com/tenderscout/tenderscout/internal/scoring"
	"github.com/tenderscout/tenderscout/internal/ungm"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName = "tenderscout"
)

type Config struct {
	UserAgent string             `mapstructure:"user-agent"`
	Catalog   *CatalogConfig     `mapstructure:"catalog"`
	Search    *ungm.SearchParams `mapstructure:"search"`
	Profile   *scoring.Profile   `mapstructure:"profile"`
	Scoring   *pipeline.Policy   `mapstructure:"scoring"`
	Semantic  *SemanticConfig    `mapstructure:"semantic"`
	Database  *DatabaseConfig    `mapstructure:"database"`
}

type CatalogConfig struct {
	APIURL           string `mapstructure:"api-url"`
	TokenURL         string `mapstructure:"token-url"`
	ClientID         string `mapstructure:"client-id"`
	ClientSecret     string `mapstructure:"client-secret"`
	ClientSecretFile string `mapstructure:"client-secret-file"`
	Scope            string `mapstructure:"scope"`
}

type SemanticConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	EmbeddingModel   string `mapstructure:"embedding-model"`
	GeminiAPIKey     string `mapstructure:"gemini-api-key"`
	GeminiAPIKeyFile string `mapstructure:"gemini-api-key-file"`
	IndexURL         string `mapstructure:"index-url"`
	IndexAPIKey      string `mapstructure:"index-api-key"`
	IndexAPIKeyFile  string `mapstructure:"index-api-key-file"`
	Namespace        string `mapstructure:"namespace"`
	TopK             int    `mapstructure:"top-k"`
}

type DatabaseConfig struct {
	URL        string        `mapstructure:"url"`
	URLFile    string        `mapstructure:"url-file"`
	SkipWindow time.Duration `mapstructure:"skip-window"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   appName,
		Short: "tenderscout retrieves UN procurement notices, scores them against your company profile and stores the good ones",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envBindings := map[string]string{
		"catalog.client-secret-file":   "UNGM_CLIENT_SECRET_FILE",
		"semantic.gemini-api-key-file": "GEMINI_API_KEY_FILE",
		"semantic.index-api-key-file":  "VECTOR_INDEX_API_KEY_FILE",
		"database.url":                 "TENDERSCOUT_DATABASE_URL",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is tenderscout.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for the run and schedule commands.
	if runCmd.CalledAs() == "" && scheduleCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(appName + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
