package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/mcoot/arenaengine/internal/api/request"
	"github.com/mcoot/arenaengine/internal/api/response"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Session inspection and control commands",
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionGetCmd())
	cmd.AddCommand(newSessionStartCmd())
	cmd.AddCommand(newSessionTerminateCmd())

	return cmd
}

func newSessionListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/sessions"
			if status != "" {
				path += "?status=" + url.QueryEscape(status)
			}

			var result response.SessionList
			if err := client.Get(path, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only show sessions in this status (waiting, active)")

	return cmd
}

func newSessionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a live session, or the result of a finished one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.SessionLookup
			if err := client.Get("/api/v1/sessions/"+url.PathEscape(args[0]), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newSessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start a waiting session that has enough players (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Session
			if err := client.Post("/api/v1/sessions/"+url.PathEscape(args[0])+"/start", nil, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newSessionTerminateCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "terminate <id>",
		Short: "End a session early (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch reason {
			case "timeout", "insufficient_players", "shutdown":
			default:
				return fmt.Errorf("--reason must be timeout, insufficient_players or shutdown")
			}

			req := request.TerminateSessionRequest{Reason: reason}
			var result response.Result
			if err := client.Delete("/api/v1/sessions/"+url.PathEscape(args[0]), req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "shutdown", "End reason: timeout, insufficient_players or shutdown")

	return cmd
}
