package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/geminilive/pkg/cli"
	"github.com/haivivi/geminilive/pkg/jsontime"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage geminilive CLI configuration.

Configuration is stored in ~/.giztoy/geminilive/config.yaml.
Multiple contexts can be defined for different accounts or environments.`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context.

Examples:
  geminilive config add-context dev --api-key AIza...
  geminilive config add-context vertex --platform vertexai --project my-proj --location us-central1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		flags := cmd.Flags()
		platform, _ := flags.GetString("platform")
		apiKey, _ := flags.GetString("api-key")
		baseURL, _ := flags.GetString("base-url")
		project, _ := flags.GetString("project")
		location, _ := flags.GetString("location")
		model, _ := flags.GetString("model")
		voice, _ := flags.GetString("voice")
		idle, _ := flags.GetDuration("turn-idle-timeout")

		if platform != cli.PlatformVertexAI && apiKey == "" {
			return fmt.Errorf("api-key is required")
		}

		ctx := &cli.Context{
			Platform: platform,
			APIKey:   apiKey,
			BaseURL:  baseURL,
			Project:  project,
			Location: location,
			Model:    model,
			Voice:    voice,
		}
		if idle > 0 {
			ctx.TurnIdleTimeout = jsontime.FromDuration(idle)
		}

		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}
		cli.PrintSuccess("Context '%s' added successfully", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context '%s' deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the default context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context '%s'", args[0])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"list-contexts"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}
		for _, name := range names {
			marker := "  "
			if name == cfg.CurrentContext {
				marker = "* "
			}
			ctx := cfg.Contexts[name]
			platform := ctx.Platform
			if platform == "" {
				platform = cli.PlatformGoogleAI
			}
			fmt.Printf("%s%-16s %-9s %s\n", marker, name, platform, ctx.Model)
		}
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View full configuration (API keys masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		masked := cli.Config{
			CurrentContext: cfg.CurrentContext,
			Contexts:       make(map[string]*cli.Context, len(cfg.Contexts)),
		}
		for name, ctx := range cfg.Contexts {
			c := *ctx
			c.APIKey = cli.MaskAPIKey(c.APIKey)
			masked.Contexts[name] = &c
		}
		return outputResult(&masked, isJSONOutput())
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.String("platform", cli.PlatformGoogleAI, "platform: googleai or vertexai")
	f.StringP("api-key", "k", "", "API key (required for googleai)")
	f.StringP("base-url", "u", "", "WebSocket base URL override")
	f.String("project", "", "Google Cloud project (vertexai)")
	f.String("location", "", "Google Cloud location (vertexai, default us-central1)")
	f.String("model", "", "default model")
	f.String("voice", "", "default prebuilt voice")
	f.Duration("turn-idle-timeout", 0, "abandon a silent model turn after this long")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configViewCmd)
}
