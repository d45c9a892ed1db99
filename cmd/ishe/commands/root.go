package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/ishe/pkg/cli"
	"github.com/haivivi/ishe/pkg/server"
)

const appName = "ishe"

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	outputJSON  bool
	verbose     bool

	// Global configuration
	globalConfig *cli.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ishe",
	Short: "iShe realtime voice assistant",
	Long: `iShe - a realtime voice assistant and its backend.

The same binary runs the backend (serve) and a headless client (talk)
that holds a realtime voice session through that backend.

Configuration is stored in ~/.ishe/ishe/ and supports multiple contexts,
similar to kubectl's context management.

Examples:
  # Run the backend
  ishe serve --config server.yaml

  # Point the client at it
  ishe config add-context local --server http://localhost:3000 --token $TOKEN

  # Talk
  ishe talk

  # Recent exchanges as JSON
  ishe conversations history --json | jq '.[].assistantResponse'
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "cli-config", "", "", "CLI config file (default is ~/.ishe/ishe/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getConfig returns the global configuration
func getConfig() *cli.Config {
	return globalConfig
}

// getContext returns the context configuration to use
func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		if contextName == "" {
			return nil, fmt.Errorf("no context specified. Use -c flag or set a default context with 'ishe config use-context'")
		}
		return nil, err
	}
	return ctx, nil
}

// outputResult outputs the result using cli package
func outputResult(result any) error {
	format := cli.FormatText
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
	})
}

// clientLogger logs client internals to stderr; quiet unless verbose.
func clientLogger() *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return server.NewLogger(server.LogConfig{Level: level, Format: "text"}, os.Stderr)
}

// talkLogger keeps the transcript on stdout clean: with --verbose the
// debug log goes to logs/talk.log next to the CLI config.
func talkLogger() (*slog.Logger, func(), error) {
	if !verbose {
		return clientLogger(), func() {}, nil
	}
	paths := getConfig().Paths()
	f, err := paths.OpenLog("talk.log")
	if err != nil {
		return nil, nil, fmt.Errorf("open talk log: %w", err)
	}
	fmt.Fprintf(os.Stderr, "debug log: %s\n", paths.LogPath("talk.log"))
	logger := server.NewLogger(server.LogConfig{Level: "debug", Format: "text"}, f)
	return logger, func() { f.Close() }, nil
}
