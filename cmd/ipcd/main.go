package main

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the ipcd command tree with its serve and request
// subcommands.
func NewRootCommand() *cobra.Command {
	var configPath string
	var url, route, data, token, secret, peer, destination string

	// rootCmd represents the base command when called without any subcommands
	var rootCmd = &cobra.Command{
		Use:          "ipcd",
		Short:        "Message envelope server for local processes",
		SilenceUsage: true,
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the IPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	var requestCmd = &cobra.Command{
		Use:   "request",
		Short: "Send one request and print the reply mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd.Context(), cmd.OutOrStdout(), requestArgs{
				url:         url,
				route:       route,
				data:        data,
				token:       token,
				secret:      secret,
				peer:        peer,
				destination: destination,
			})
		},
	}

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a JSON (with comments) config file")

	rootCmd.AddCommand(requestCmd)
	requestCmd.Flags().StringVarP(&url, "url", "u", "ws://localhost:9999/ws", "Server websocket URL")
	requestCmd.Flags().StringVarP(&route, "route", "r", "ping", "Route to call")
	requestCmd.Flags().StringVarP(&data, "data", "d", "{}", "Request data as a JSON object")
	requestCmd.Flags().StringVar(&token, "token", "", "Bearer token")
	requestCmd.Flags().StringVar(&secret, "secret", os.Getenv("IPC_SECRET"), "Secret used to answer verification challenges")
	requestCmd.Flags().StringVar(&peer, "peer", "ipcd", "Peer name signed into challenge answers")
	requestCmd.Flags().StringVar(&destination, "destination", "", "Peer id to address instead of the server")

	return rootCmd
}

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
