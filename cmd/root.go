// Package cmd implements the arbminer command-line interface: batch
// crawling, single-task discovery, cross-marketplace matching, state
// inspection, the read API server and the cron scheduler.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arbminer/arbminer/cmd/crawl"
	"github.com/arbminer/arbminer/cmd/discover"
	"github.com/arbminer/arbminer/cmd/match"
	cmdscheduler "github.com/arbminer/arbminer/cmd/scheduler"
	"github.com/arbminer/arbminer/cmd/serve"
	"github.com/arbminer/arbminer/cmd/state"
)

const version = "1.0.0"

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "arbminer",
		Short: "Cross-marketplace arbitrage miner",
		Long: `arbminer discovers marketplace products, estimates demand from
sales-rank data and cross-matches listings on a second marketplace to
surface arbitrage candidates.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so credentials are visible to viper.
	_ = godotenv.Load()

	// Parse flags early so --config and --debug apply to initConfig.
	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("arbminer version %s\n", version)
		},
	})

	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(discover.Command())
	rootCmd.AddCommand(match.Command())
	rootCmd.AddCommand(state.Command())
	rootCmd.AddCommand(serve.Command())
	rootCmd.AddCommand(cmdscheduler.Command())
}

// initConfig reads the config file and environment variables into
// viper. The config file is optional; environment variables and
// defaults cover everything.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v (using defaults and environment variables)\n", err)
	}

	if err := bindEnvVars(); err != nil {
		return err
	}

	if debug || viper.GetBool("app.debug") {
		viper.Set("logger.level", "debug")
	}
	if viper.GetString("app.environment") == "development" {
		viper.Set("logger.development", true)
		viper.Set("logger.encoding", "console")
	}

	return nil
}

// bindEnvVars maps credential environment variables to config keys.
func bindEnvVars() error {
	bindings := map[string][]string{
		"app.environment":          {"APP_ENV"},
		"app.debug":                {"APP_DEBUG"},
		"logger.level":             {"LOG_LEVEL"},
		"logger.encoding":          {"LOG_FORMAT"},
		"platform_a.client_id":     {"SPAPI_CLIENT_ID", "LWA_CLIENT_ID"},
		"platform_a.client_secret": {"SPAPI_CLIENT_SECRET", "LWA_CLIENT_SECRET"},
		"platform_a.refresh_token": {"SPAPI_REFRESH_TOKEN"},
		"platform_a.access_key":    {"SPAPI_ACCESS_KEY", "AWS_ACCESS_KEY_ID"},
		"platform_a.secret_key":    {"SPAPI_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"},
		"platform_b.client_id":     {"EBAY_CLIENT_ID"},
		"platform_b.client_secret": {"EBAY_CLIENT_SECRET"},
		"database.password":        {"DATABASE_PASSWORD", "POSTGRES_PASSWORD"},
		"redis.password":           {"REDIS_PASSWORD"},
	}
	for key, envs := range bindings {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults sets production-safe defaults for every config section.
func setDefaults() {
	viper.SetDefault("app", map[string]any{
		"name":        "arbminer",
		"environment": "production",
		"debug":       false,
	})

	viper.SetDefault("logger", map[string]any{
		"level":       "info",
		"encoding":    "json",
		"development": false,
	})

	viper.SetDefault("platform_a", map[string]any{
		"region":          "na",
		"marketplace_id":  "ATVPDKIKX0DER",
		"connect_timeout": "5s",
		"read_timeout":    "30s",
		"max_retries":     5,
		"pricing_min_gap": "2200ms",
	})

	viper.SetDefault("platform_b", map[string]any{
		"marketplace_id": "EBAY_US",
		"site_id":        "0",
		"currency":       "USD",
		"search_limit":   50,
		"timeout":        "30s",
	})

	viper.SetDefault("crawler", map[string]any{
		"task_file":           "tasks.yaml",
		"state_file":          "crawler_state.json",
		"max_tasks_per_run":   5,
		"max_items_per_task":  60,
		"max_pages_per_task":  150,
		"sleep_between_tasks": "2s",
	})

	viper.SetDefault("discovery", map[string]any{
		"offer_type":        "any",
		"min_monthly_sales": 0,
		"page_size":         20,
	})

	viper.SetDefault("matching", map[string]any{
		"min_score_identifier": 85,
		"min_score_with_brand": 92,
		"min_score_no_brand":   95,
		"offer_type":           "any",
		"condition":            "NEW",
		"cache_size":           512,
	})

	viper.SetDefault("database", map[string]any{
		"enabled": false,
		"host":    "localhost",
		"port":    "5432",
		"user":    "arbminer",
		"dbname":  "arbminer",
		"sslmode": "disable",
	})

	viper.SetDefault("redis", map[string]any{
		"enabled": false,
		"address": "localhost:6379",
		"db":      0,
	})

	viper.SetDefault("server", map[string]any{
		"address":       ":8080",
		"read_timeout":  "15s",
		"write_timeout": "15s",
	})

	viper.SetDefault("scheduler", map[string]any{
		"cron": "0 */6 * * *",
	})
}
