package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	dbPath      string
	redisURL    string
	logLevel    string
	lawCatalog  string
	assistName  string
	apiEndpoint string
	apiToken    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "Cybercrime incident reporting console",
	Long: `Veritas is a headless console for preparing and filing cybercrime
incident reports. It manages incident drafts through a guided lifecycle,
runs legal analysis against a configurable law catalog, and forwards
completed reports to the external Incident API.

Features:
- Incident draft lifecycle with timeline, evidence and chat
- Law violation analysis with offline and OpenAI-backed providers
- SQLite storage with full-text search and an audit trail
- Redis Streams event bus for downstream consumers
- REST API with bearer auth and Prometheus metrics`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.veritas.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/veritas.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL (empty disables the event bus)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&lawCatalog, "law-catalog", "", "YAML law catalog path (empty uses the built-in catalog)")
	rootCmd.PersistentFlags().StringVar(&assistName, "assist-provider", "rule", "Assist provider: rule, openai")
	rootCmd.PersistentFlags().StringVar(&apiEndpoint, "incident-api", "", "Incident API base URL (empty uses the embedded simulator)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "incident-api-token", "", "Incident API bearer token")

	// Bind flags to viper
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("laws.catalog", rootCmd.PersistentFlags().Lookup("law-catalog"))
	viper.BindPFlag("assist.provider", rootCmd.PersistentFlags().Lookup("assist-provider"))
	viper.BindPFlag("incidentapi.endpoint", rootCmd.PersistentFlags().Lookup("incident-api"))
	viper.BindPFlag("incidentapi.token", rootCmd.PersistentFlags().Lookup("incident-api-token"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".veritas" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".veritas")
	}

	viper.SetEnvPrefix("VERITAS")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("database.path", "./data/veritas.db")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("laws.catalog", "")
	viper.SetDefault("assist.provider", "rule")
	viper.SetDefault("assist.settings", "./data/assist.json")
	viper.SetDefault("incidentapi.endpoint", "")
	viper.SetDefault("incidentapi.token", "")
	viper.SetDefault("http.listen", "127.0.0.1:8080")
	viper.SetDefault("http.token", "")
	viper.SetDefault("http.rps", 0)
	viper.SetDefault("http.burst", 0)
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Laws: LawsConfig{
			Catalog: viper.GetString("laws.catalog"),
		},
		Assist: AssistConfig{
			Provider: viper.GetString("assist.provider"),
			Settings: viper.GetString("assist.settings"),
		},
		IncidentAPI: IncidentAPIConfig{
			Endpoint: viper.GetString("incidentapi.endpoint"),
			Token:    viper.GetString("incidentapi.token"),
		},
		HTTP: HTTPConfig{
			Listen: viper.GetString("http.listen"),
			Token:  viper.GetString("http.token"),
			RPS:    viper.GetInt("http.rps"),
			Burst:  viper.GetInt("http.burst"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Laws        LawsConfig        `mapstructure:"laws"`
	Assist      AssistConfig      `mapstructure:"assist"`
	IncidentAPI IncidentAPIConfig `mapstructure:"incidentapi"`
	HTTP        HTTPConfig        `mapstructure:"http"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type LawsConfig struct {
	Catalog string `mapstructure:"catalog"`
}

type AssistConfig struct {
	Provider string `mapstructure:"provider"`
	Settings string `mapstructure:"settings"`
}

type IncidentAPIConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Token    string `mapstructure:"token"`
}

type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
	Token  string `mapstructure:"token"`
	RPS    int    `mapstructure:"rps"`
	Burst  int    `mapstructure:"burst"`
}
