package main

import "github.com/spf13/cobra"

// buildReloadCmd creates the "reload" command, a thin client that calls a
// running server's own POST /bots/{id}/reload route over loopback.
func buildReloadCmd() *cobra.Command {
	var serverAddr string

	cmd := &cobra.Command{
		Use:   "reload <bot_id>",
		Short: "Recompile a bot's published spec on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReload(cmd.Context(), serverAddr, args[0])
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", "http://127.0.0.1:8080", "Base URL of the running server")
	return cmd
}
