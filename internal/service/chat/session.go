package chat

import (
	"sync"
	"time"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
)

// Session is the state of one browser tab: transcript, persona instruction and
// model selection. All fields are guarded by mu.
type Session struct {
	mu sync.Mutex

	id        string
	personaID string
	createdAt time.Time

	// instruction is the editable persona text. pinned is the text captured
	// when turn 0 was first sent and is what every later payload uses until the
	// transcript is cleared.
	instruction string
	pinned      string
	pinnedSet   bool

	model   string
	catalog chat.ModelCatalog

	transcript *TranscriptStore
	state      chat.TurnState
	lastError  string
	inFlight   bool
}

func newSession(id, personaID, instruction string, catalog chat.ModelCatalog, model string) *Session {
	return &Session{
		id:          id,
		personaID:   personaID,
		createdAt:   time.Now().UTC(),
		instruction: instruction,
		model:       model,
		catalog:     catalog,
		transcript:  NewTranscriptStore(),
		state:       chat.StateIdle,
	}
}

// clear empties the transcript and unpins the instruction. Caller holds mu.
func (s *Session) clear() {
	s.transcript.Clear()
	s.pinned = ""
	s.pinnedSet = false
	s.lastError = ""
	s.state = chat.StateIdle
}

// view snapshots the session. Caller holds mu.
func (s *Session) view() chat.SessionView {
	catalog := s.catalog
	catalog.Models = append([]string(nil), s.catalog.Models...)

	return chat.SessionView{
		ID:          s.id,
		PersonaID:   s.personaID,
		Instruction: s.instruction,
		Model:       s.model,
		Catalog:     catalog,
		State:       s.state,
		LastError:   s.lastError,
		Transcript:  s.transcript.All(),
		CreatedAt:   s.createdAt,
	}
}
