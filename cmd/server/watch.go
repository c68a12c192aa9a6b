package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"collab-sync/internal/client"
	"collab-sync/internal/models"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	var (
		url     string
		content string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a server as a headless participant and print every frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var c *client.Client
			c = client.New(url, client.Options{
				OnMessage: func(env models.Envelope, raw []byte) {
					fmt.Fprintln(os.Stdout, string(raw))
					// Publish once we know our identity
					if env.Type == models.TypeInit && content != "" {
						if err := c.SendContent(content); err != nil {
							log.Printf("⚠️  Failed to send content: %v", err)
						}
					}
				},
				OnStateChange: func(s client.State) {
					log.Printf("🔌 %s", s)
				},
			})

			return c.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://localhost:8080", "server websocket URL")
	cmd.Flags().StringVar(&content, "content", "", "replace the document body with this text after joining")

	return cmd
}
