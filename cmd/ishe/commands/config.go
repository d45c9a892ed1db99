package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/ishe/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

A context names a backend and the access token used against it,
similar to kubectl's context management.

Configuration is stored in ~/.ishe/ishe/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name.

Example:
  ishe config add-context local --server http://localhost:3000 --token TOKEN
  ishe config add-context prod --server https://ishe.example.com --token TOKEN --transport websocket`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		server, err := cmd.Flags().GetString("server")
		if err != nil {
			return fmt.Errorf("failed to read 'server' flag: %w", err)
		}
		if server == "" {
			return fmt.Errorf("--server is required")
		}
		token, err := cmd.Flags().GetString("token")
		if err != nil {
			return fmt.Errorf("failed to read 'token' flag: %w", err)
		}
		userName, err := cmd.Flags().GetString("user-name")
		if err != nil {
			return fmt.Errorf("failed to read 'user-name' flag: %w", err)
		}
		model, err := cmd.Flags().GetString("model")
		if err != nil {
			return fmt.Errorf("failed to read 'model' flag: %w", err)
		}
		transport, err := cmd.Flags().GetString("transport")
		if err != nil {
			return fmt.Errorf("failed to read 'transport' flag: %w", err)
		}
		timeout, err := cmd.Flags().GetInt("timeout")
		if err != nil {
			return fmt.Errorf("failed to read 'timeout' flag: %w", err)
		}

		ctx := &cli.Context{
			Server:    server,
			Token:     token,
			UserName:  userName,
			Model:     model,
			Transport: transport,
			Timeout:   timeout,
		}
		if err := getConfig().AddContext(name, ctx); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q added successfully", name)
		return nil
	},
}

var configSetTokenCmd = &cobra.Command{
	Use:   "set-token <name> <token>",
	Short: "Replace the access token of a context",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		ctx, err := cfg.GetContext(args[0])
		if err != nil {
			return err
		}
		ctx.Token = args[1]
		if err := cfg.Save(); err != nil {
			return err
		}
		cli.PrintSuccess("Token of context %q updated", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context",
	Short: "Display the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if cfg.CurrentContext == "" {
			fmt.Println("No current context set")
			return nil
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSERVER\tTRANSPORT\tTOKEN")
		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", current, name, ctx.Server, ctx.GetTransport(), cli.MaskToken(ctx.Token))
		}
		return w.Flush()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current context configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := getContext()
		if err != nil {
			return err
		}
		view := *ctx
		view.Token = cli.MaskToken(ctx.Token)
		return outputResult(view)
	},
}

func init() {
	configAddContextCmd.Flags().String("server", "", "backend base URL (required)")
	configAddContextCmd.Flags().String("token", "", "bearer access token")
	configAddContextCmd.Flags().String("user-name", "", "name used in prompts")
	configAddContextCmd.Flags().String("model", "", "realtime model (backend default if empty)")
	configAddContextCmd.Flags().String("transport", cli.TransportWebRTC, "webrtc or websocket")
	configAddContextCmd.Flags().Int("timeout", 0, "request timeout in seconds")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configSetTokenCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
