package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lunai408/local-agent-factory/engine"
)

var (
	serveUser    string
	serveSession string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an interactive chat session",
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := newRuntime(true)
		if err != nil {
			exitErr("startup", err)
		}
		defer rt.Close()

		sessionID := serveSession
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		// Make persisted memories recallable by relevance from the start.
		if err := rt.recall.Warm(cmd.Context(), rt.memory, serveUser, 1000); err != nil {
			fmt.Fprintf(os.Stderr, "warning: recall warm-up failed: %v\n", err)
		}

		fmt.Printf("session %s (user %s), type your message, ctrl-d to quit\n", sessionID, serveUser)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			message := strings.TrimSpace(scanner.Text())
			if message == "" {
				continue
			}
			if err := runTurn(cmd.Context(), rt, sessionID, message); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
		fmt.Println()
	},
}

func runTurn(ctx context.Context, rt *runtime, sessionID, message string) error {
	result, err := rt.dispatcher.HandleTurn(ctx, &engine.TurnRequest{
		SessionID: sessionID,
		UserID:    serveUser,
		Message:   message,
		Stream: func(chunk string, done bool) {
			if done {
				fmt.Println()
				return
			}
			fmt.Print(chunk)
		},
	})
	if err != nil {
		return err
	}
	for _, artifact := range result.Artifacts {
		fmt.Printf("  [%s] %s\n", artifact.Kind, artifact.Path)
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveUser, "user", "u", "local", "User id for memory scoping")
	serveCmd.Flags().StringVarP(&serveSession, "session", "s", "", "Resume an existing session id")
	RootCmd.AddCommand(serveCmd)
}
