package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"shopagent/internal/dialog"
	"shopagent/internal/store"
)

var (
	chatSessionID string
	chatImagePath string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the agent from the terminal",
	Long: `With a message argument, runs a single turn and prints the reply.
Without arguments, starts an interactive loop (Ctrl-D to quit).
Use --session to continue an existing conversation and --image to
attach a product photo to the first turn.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "session id to continue")
	chatCmd.Flags().StringVar(&chatImagePath, "image", "", "path to an image to attach to the turn")
}

// chatTurn runs one dialog turn against the store: load state, handle
// the message (with optional image bytes), log both sides, save state.
// Mirrors what the HTTP transport does per request.
func chatTurn(ctx context.Context, manager *dialog.Manager, st *store.LocalStore, sessionID, message string, image []byte) (dialog.TurnResult, error) {
	state, err := st.LoadSession(sessionID)
	if err != nil {
		return dialog.TurnResult{}, err
	}
	result := manager.HandleTurn(ctx, state, message, image)

	attachmentID := ""
	if len(image) > 0 {
		id, err := st.SaveAttachment(sessionID, http.DetectContentType(image), image)
		if err != nil {
			return dialog.TurnResult{}, err
		}
		attachmentID = id
	}
	if err := st.AppendMessage(sessionID, "user", message, attachmentID); err != nil {
		return dialog.TurnResult{}, err
	}
	if err := st.AppendMessage(sessionID, "agent", result.Reply, ""); err != nil {
		return dialog.TurnResult{}, err
	}
	if err := st.SaveSession(state); err != nil {
		return dialog.TurnResult{}, err
	}
	return result, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	manager, st, err := buildCore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	sessionID := chatSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
		fmt.Printf("session: %s\n", sessionID)
	}

	var image []byte
	if chatImagePath != "" {
		image, err = os.ReadFile(chatImagePath)
		if err != nil {
			return fmt.Errorf("failed to read image %s: %w", chatImagePath, err)
		}
	}

	turn := func(message string) error {
		result, err := chatTurn(ctx, manager, st, sessionID, message, image)
		if err != nil {
			return err
		}
		// The image rides along on the first turn only.
		image = nil
		fmt.Printf("[%s] %s\n", result.Status, result.Reply)
		return nil
	}

	if len(args) > 0 {
		return turn(strings.Join(args, " "))
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		message := strings.TrimSpace(scanner.Text())
		if message != "" {
			if err := turn(message); err != nil {
				return err
			}
		}
		fmt.Print("> ")
	}
	fmt.Println()
	return scanner.Err()
}
