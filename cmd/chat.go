package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/abhirockzz/ele-chat/chatview"
	"github.com/abhirockzz/ele-chat/conversation"
)

// ChatCommand returns the CLI command for chatting with a running server from the terminal.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with a running Ele server from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "Base URL of the chat server",
				Value:   "http://localhost:8080",
				EnvVars: []string{"ELE_CHAT_URL"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level for failed turns",
				Value: "warn",
			},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log-level"), true, os.Stderr)
			ctx := logger.WithContext(c.Context)

			session := conversation.NewSession(
				conversation.NewClient(c.String("url"), nil),
				conversation.NewStore(conversation.History{}),
			)
			view, err := chatview.New(session, os.Stdin, os.Stdout)
			if err != nil {
				return fmt.Errorf("error starting chat view: %w", err)
			}
			return view.Run(ctx)
		},
	}
}
