package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpadapter "github.com/felixgeelhaar/meridian/adapter/mcp"
	"github.com/felixgeelhaar/meridian/internal/app"
)

var mcpUserID string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage the Meridian MCP interface",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server acting for one user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := cliLogger()

		container, err := app.NewContainer(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()
		container.Start(ctx)

		err = mcpadapter.Serve(ctx, mcpadapter.ServeConfig{
			Addr:      cfg.MCPAddr,
			AuthToken: cfg.MCPAuthToken,
			Version:   Version,
		}, mcpadapter.ToolDependencies{Container: container, UserID: mcpUserID}, log)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	mcpServeCmd.Flags().StringVar(&mcpUserID, "user", os.Getenv("MERIDIAN_USER_ID"), "user the MCP tools act for")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
