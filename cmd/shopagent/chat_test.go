package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"shopagent/internal/dialog"
	"shopagent/internal/policy"
	"shopagent/internal/store"
)

func newChatFixture(t *testing.T) (*dialog.Manager, *store.LocalStore) {
	t.Helper()
	table, err := policy.Load("../../policies.json")
	if err != nil {
		t.Fatalf("policy table: %v", err)
	}
	st, err := store.NewLocalStore(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return dialog.NewManager(table, nil, nil, 0), st
}

func TestChatTurnPersistsAcrossTurns(t *testing.T) {
	manager, st := newChatFixture(t)
	ctx := context.Background()

	result, err := chatTurn(ctx, manager, st, "cli-sess", "I want to return my laptop", nil)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if result.NextQuestionSlot == nil || *result.NextQuestionSlot != dialog.SlotCategory {
		t.Fatalf("question = %v, want category", result.NextQuestionSlot)
	}

	result, err = chatTurn(ctx, manager, st, "cli-sess", "it's a laptop", nil)
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if result.NextQuestionSlot == nil || *result.NextQuestionSlot != dialog.SlotIntent {
		t.Fatalf("question = %v, want intent", result.NextQuestionSlot)
	}

	state, err := st.LoadSession("cli-sess")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.TurnCount != 2 {
		t.Errorf("turn count = %d, want 2", state.TurnCount)
	}
	msgs, err := st.Messages("cli-sess", 0)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("message log has %d entries, want 4", len(msgs))
	}
}

func TestChatTurnWithImageStoresAttachment(t *testing.T) {
	manager, st := newChatFixture(t)

	image := []byte{0xff, 0xd8, 0xff, 0xe0}
	result, err := chatTurn(context.Background(), manager, st, "cli-img", "what can I do with this?", image)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if result.Status != dialog.StatusNeedsInfo {
		t.Errorf("status = %s, want needs_info", result.Status)
	}

	msgs, err := st.Messages("cli-img", 0)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message log has %d entries, want 2", len(msgs))
	}
	if msgs[0].AttachmentID == "" {
		t.Fatal("user message not linked to the attachment")
	}

	data, contentType, err := st.Attachment(msgs[0].AttachmentID)
	if err != nil {
		t.Fatalf("load attachment: %v", err)
	}
	if !bytes.Equal(data, image) {
		t.Errorf("attachment bytes = %v, want %v", data, image)
	}
	if contentType != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", contentType)
	}
}
