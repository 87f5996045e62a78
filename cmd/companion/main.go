// Package main provides the companion CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/richinex/companion/chat"
	"github.com/richinex/companion/cli"
	"github.com/richinex/companion/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider  string
	model     string
	persona   string
	store     string
	storePath string
	verbose   bool
	jsonOut   bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "companion",
		Short: "Conversational companion with personas and persistent history",
		Long: `A CLI for talking to an LLM companion.

Conversations are titled from their first message and saved between runs.
Personas set the companion's voice; models are chosen from an allow-list.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider ("+strings.Join(config.SupportedProviders(), ", ")+")")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model from the allow-list")
	rootCmd.PersistentFlags().StringVar(&persona, "persona", "", "Persona id")
	rootCmd.PersistentFlags().StringVar(&store, "store", "", "Conversation store backend (file, sqlite)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "Conversation store location")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")

	// Add commands
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(personasCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(conversationsCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(healthCmd())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cli.ErrReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:  provider,
		Model:     model,
		Persona:   persona,
		Store:     store,
		StorePath: storePath,
		Verbose:   verbose,
		JSON:      jsonOut,
	}
}

func chatCmd() *cobra.Command {
	var noStream bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session.

Replies stream as they are generated. Ctrl-C abandons the reply in progress
without saving it. Type /help inside the session for commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.Chat(ctx, !noStream)
			})
		},
	}

	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full reply instead of streaming")

	return cmd
}

func askCmd() *cobra.Command {
	var conversationID string
	var stream bool

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := chat.Request{
				Message:        strings.Join(args, " "),
				ConversationID: conversationID,
			}
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.Send(ctx, req, stream && !jsonOut)
			})
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Continue this conversation")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the reply as it is generated")

	return cmd
}

func personasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List available personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.ListPersonas()
			})
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List allowed models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.ListModels()
			})
		},
	}
}

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage saved conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.ListConversations()
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.ListConversations()
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Show a conversation and make it current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.ShowConversation(args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Start an empty conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.NewConversation(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.DeleteConversation(ctx, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear [id]",
		Short: "Remove all messages from a conversation (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.ClearConversation(ctx, id)
			})
		},
	})

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider, selections and persistence health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options(), func(ctx context.Context, app *cli.App) error {
				return app.Status()
			})
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report liveness",
		Long: `Report process liveness. Reads no configuration, provider or
conversation store, so it works without an API key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Health(cmd.OutOrStdout(), jsonOut)
		},
	}
}
