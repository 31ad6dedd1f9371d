package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/config"
	_ "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/logger/autoload"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "concierge",
		Short:         "Restaurant reservation concierge: search, check, book and call on the user's behalf",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			configx.SetEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file")

	root.AddCommand(newChatCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func newChatCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the concierge on stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			log.Info().Str("session_id", sessionID).Msg("chat session started")
			return chatLoop(ctx, app, sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to resume (default: new session)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the session and calendar tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Migrate(cmd.Context())
		},
	}
}

func chatLoop(ctx context.Context, app *App, sessionID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			fmt.Print("> ")
			continue
		}
		if text == "/exit" {
			return nil
		}

		reply, err := app.Orchestrator.HandleMessage(ctx, sessionID, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("session_id", sessionID).Msg("handle message failed")
			fmt.Println("Lo siento, algo ha fallado. ¿Puedes repetirlo?")
		} else {
			fmt.Println(reply)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}
