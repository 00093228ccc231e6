package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/vt-lookup/internal/logging"
	"github.com/Ashfaaq98/vt-lookup/internal/lookup"
	"github.com/Ashfaaq98/vt-lookup/internal/virustotal"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	debug     bool

	// logger is built in PersistentPreRunE once flags and config are known.
	logger *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vt-lookup",
	Short: "Batch IP and URL reputation lookups against VirusTotal",
	Long: `vt-lookup reads a list of IP addresses or URLs, checks each one against the
VirusTotal v3 API in small concurrent batches, and reports which are malicious.

Features:
- JSON file, interactive, Redis list and SQLite query input
- Syntax validation and de-duplication before any network call
- Bounded concurrency (--group-max-size) per batch
- Failed lookups are logged and skipped, never fatal
- Timestamped JSON report file or console output`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := viper.GetString("log.level")
		if debug {
			level = "debug"
		}
		l, err := logging.New(logging.Config{
			Level:  level,
			Format: viper.GetString("log.format"),
		})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Errors are logged here so main only has to pick the exit status.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		if logger != nil {
			logger.Error("lookup run failed", zap.Error(err))
			_ = logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vt-lookup.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, console)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Shorthand for --log-level debug")

	// Bind flags to viper
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".vt-lookup")
	}

	// VT_LOOKUP_VIRUSTOTAL_API_KEY overrides virustotal.api_key, and so on.
	viper.SetEnvPrefix("VT_LOOKUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("virustotal.base_url", virustotal.DefaultBaseURL)
	viper.SetDefault("virustotal.timeout", 30*time.Second)
	viper.SetDefault("virustotal.verify_tls", true)
	viper.SetDefault("lookup.group_max_size", lookup.DefaultGroupMaxSize)
	viper.SetDefault("output.dir", "")
	viper.SetDefault("redis.url", "redis://localhost:6379")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		VirusTotal: VirusTotalConfig{
			APIKey:    viper.GetString("virustotal.api_key"),
			BaseURL:   viper.GetString("virustotal.base_url"),
			Timeout:   viper.GetDuration("virustotal.timeout"),
			VerifyTLS: viper.GetBool("virustotal.verify_tls"),
		},
		Lookup: LookupConfig{
			GroupMaxSize: viper.GetInt("lookup.group_max_size"),
		},
		Output: OutputConfig{
			Dir: viper.GetString("output.dir"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	VirusTotal VirusTotalConfig `mapstructure:"virustotal"`
	Lookup     LookupConfig     `mapstructure:"lookup"`
	Output     OutputConfig     `mapstructure:"output"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type VirusTotalConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	VerifyTLS bool          `mapstructure:"verify_tls"`
}

type LookupConfig struct {
	GroupMaxSize int `mapstructure:"group_max_size"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}
