package chat

import (
	"testing"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
)

func TestTranscriptStoreAppendAll(t *testing.T) {
	store := NewTranscriptStore()
	store.Append(chat.NewUserText("one"))
	store.Append(chat.NewAssistantText("two"))

	all := store.All()
	if len(all) != 2 || all[0].DisplayText != "one" || all[1].DisplayText != "two" {
		t.Fatalf("unexpected transcript %+v", all)
	}

	all[0].DisplayText = "mutated"
	if store.All()[0].DisplayText != "one" {
		t.Fatal("All must return a copy")
	}
}

func TestTranscriptStoreClear(t *testing.T) {
	store := NewTranscriptStore()
	store.Append(chat.NewUserText("one"))
	store.Append(chat.NewAssistantText("two"))
	before := store.All()

	store.Clear()
	if got := store.All(); len(got) != 0 {
		t.Fatalf("expected empty transcript, got %d", len(got))
	}

	store.Append(chat.NewUserText("fresh"))
	if store.Len() != 1 || store.All()[0].DisplayText != "fresh" {
		t.Fatalf("expected fresh turn at index 0, got %+v", store.All())
	}
	if before[0].DisplayText != "one" {
		t.Fatal("earlier snapshots must not change after Clear")
	}
}

func TestTranscriptStoreLastAndDropLast(t *testing.T) {
	store := NewTranscriptStore()
	if _, ok := store.Last(); ok {
		t.Fatal("expected no last turn on empty store")
	}
	store.DropLast()

	store.Append(chat.NewUserText("one"))
	last, ok := store.Last()
	if !ok || last.DisplayText != "one" {
		t.Fatalf("unexpected last %+v", last)
	}

	store.DropLast()
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestTranscriptStoreSetTranscript(t *testing.T) {
	store := NewTranscriptStore()
	turn := chat.NewUserAudio([]byte("clip"), "audio/webm", "")
	turn.ID = "t1"
	store.Append(turn)

	snapshot := store.All()
	if !store.SetTranscript("t1", "hello") {
		t.Fatal("expected turn to be found")
	}
	if store.SetTranscript("missing", "x") {
		t.Fatal("expected unknown turn to be reported")
	}

	last, _ := store.Last()
	if last.Content.Transcript != "hello" {
		t.Fatalf("expected transcript stored, got %q", last.Content.Transcript)
	}
	if snapshot[0].Content.Transcript != "" {
		t.Fatal("earlier snapshots must not change")
	}
}
