package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/arenaengine/internal/api/request"
	"github.com/mcoot/arenaengine/internal/api/response"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Token management commands (admin)",
	}

	cmd.AddCommand(newTokenIssueCmd())

	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var role string
	var attrs []string
	var save bool

	cmd := &cobra.Command{
		Use:   "issue <player-id>",
		Short: "Issue a signed token for a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.IssueTokenRequest{
				PlayerID: args[0],
				Role:     role,
			}
			if len(attrs) > 0 {
				req.Attributes = make(map[string]any, len(attrs))
				for _, attr := range attrs {
					key, value, ok := strings.Cut(attr, "=")
					if !ok || key == "" {
						return fmt.Errorf("invalid attribute %q, expected key=value", attr)
					}
					req.Attributes[key] = value
				}
			}

			var result response.Token
			if err := client.Post("/api/v1/admin/tokens", req, &result); err != nil {
				return err
			}

			if save {
				if err := cfg.SaveToken(result.Token); err != nil {
					return fmt.Errorf("failed to save token: %w", err)
				}
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Token role (\"admin\" for operator tokens)")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute to embed as key=value (repeatable)")
	cmd.Flags().BoolVar(&save, "save", false, "Save the issued token to the token file")

	return cmd
}

func newShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Gracefully shut the server down (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Post("/api/v1/admin/shutdown", nil, nil); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage("Shutdown requested")
			return nil
		},
	}
}
