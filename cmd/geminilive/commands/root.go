package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haivivi/geminilive/pkg/cli"
)

const appName = "geminilive"

var (
	// Global flags
	cfgFile     string
	contextName string
	envFile     string
	outputJSON  bool
	verbose     bool

	// Global configuration
	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "geminilive",
	Short: "Gemini Live API CLI tool",
	Long: `geminilive - a command line client for the Gemini Live API.

Keeps a bidirectional WebSocket session with a Gemini Live model, sends text
or realtime audio, and prints the model's replies as they stream in.

Configuration is stored in ~/.giztoy/geminilive/ and supports multiple contexts,
similar to kubectl's context management.

Examples:
  # Set up a new context
  geminilive config add-context dev --api-key YOUR_API_KEY

  # Start an interactive chat, recording model audio
  geminilive chat --audio --record ./recordings

  # Stream a 16 kHz PCM file and print the reply
  geminilive stream question.pcm

  # Inspect the setup frame a config file produces
  geminilive setup -f session.yaml
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command returns the root cobra command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.giztoy/geminilive/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(setupCmd)
}

func initConfig() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load env file", "file", envFile, "error", err)
		}
	}

	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s config: %v\n", appName, err)
	}
}

func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig, nil
}

// getContext returns the context to use. Without a configured context, an
// API key from the environment forms an implicit one.
func getContext() (*cli.Context, error) {
	cfg, err := getConfig()
	if err == nil {
		ctx, rerr := cfg.ResolveContext(contextName)
		if rerr == nil {
			return ctx, nil
		}
		if contextName != "" {
			return nil, rerr
		}
	}
	if key := envAPIKey(); key != "" {
		return &cli.Context{Name: "env", APIKey: key}, nil
	}
	return nil, fmt.Errorf("no context specified. Use -c flag, set a default context with 'geminilive config use-context', or set GEMINI_API_KEY")
}

func envAPIKey() string {
	for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func isJSONOutput() bool {
	return outputJSON
}

func outputResult(result any, asJSON bool) error {
	format := cli.FormatYAML
	if asJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{Format: format})
}

func printVerbose(format string, args ...any) {
	if verbose {
		slog.Debug(fmt.Sprintf(format, args...))
	}
}
