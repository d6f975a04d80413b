package chat

import "github.com/zhouzirui/crisis-desk/backend/internal/model/chat"

// TranscriptStore holds the ordered turns of one session. Callers keep roles
// alternating; the store does not check.
type TranscriptStore struct {
	turns []chat.Turn
}

// NewTranscriptStore returns an empty store.
func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{turns: make([]chat.Turn, 0, 16)}
}

// Append adds turn to the end.
func (t *TranscriptStore) Append(turn chat.Turn) {
	t.turns = append(t.turns, turn)
}

// All returns a copy of the turns in order.
func (t *TranscriptStore) All() []chat.Turn {
	copied := make([]chat.Turn, len(t.turns))
	copy(copied, t.turns)
	return copied
}

// Clear empties the transcript.
func (t *TranscriptStore) Clear() {
	t.turns = t.turns[:0]
}

// Len returns the number of turns.
func (t *TranscriptStore) Len() int {
	return len(t.turns)
}

// Last returns the most recent turn.
func (t *TranscriptStore) Last() (chat.Turn, bool) {
	if len(t.turns) == 0 {
		return chat.Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// DropLast removes the most recent turn, if any.
func (t *TranscriptStore) DropLast() {
	if len(t.turns) > 0 {
		t.turns = t.turns[:len(t.turns)-1]
	}
}

// SetTranscript records the transcript of a voice turn. It reports whether the
// turn was found.
func (t *TranscriptStore) SetTranscript(turnID, text string) bool {
	for i := range t.turns {
		if t.turns[i].ID == turnID {
			t.turns[i].Content.Transcript = text
			return true
		}
	}
	return false
}
