package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result HealthResult

			if err := client.Get("/api/v1/health", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show how many players are waiting per difficulty",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result QueueResult

			if err := client.Get("/api/v1/queue", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session <id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result SessionResult

			if err := client.Get(fmt.Sprintf("/api/v1/sessions/%s", url.PathEscape(args[0])), &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}
