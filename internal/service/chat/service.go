package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
	"github.com/zhouzirui/crisis-desk/backend/internal/model/persona"
	"github.com/zhouzirui/crisis-desk/backend/internal/service/ai"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrPersonaNotFound  = errors.New("persona not found")
	ErrUnknownModel     = errors.New("model is not in the session catalog")
	ErrRequestInFlight  = errors.New("a request is already in flight for this session")
	ErrEmptySubmission  = errors.New("message is empty")
	ErrNothingToRetry   = errors.New("no unanswered message to retry")
	ErrGatewayMissing   = errors.New("model gateway not configured")
	ErrDiscoveryMissing = errors.New("model discovery not configured")
	ErrNoSpeech         = errors.New("no speech was recognised in the voice message")
)

// Service owns every live session and runs turn submissions.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	personas       persona.Store
	defaultPersona string
	injector       *ai.Injector
	gateway        ai.Gateway
	transcriber    ai.Transcriber
	discovery      *ai.Discovery
}

// Options wires the collaborators of the Service.
type Options struct {
	Personas         persona.Store
	DefaultPersonaID string
	Injector         *ai.Injector
	Gateway          ai.Gateway
	Transcriber      ai.Transcriber
	Discovery        *ai.Discovery
}

// NewService bootstraps the in-memory session service.
func NewService(opts Options) *Service {
	defaultPersona := opts.DefaultPersonaID
	if defaultPersona == "" {
		defaultPersona = persona.DefaultID
	}
	injector := opts.Injector
	if injector == nil {
		injector = ai.NewInjector(persona.StrategyInline)
	}

	return &Service{
		sessions:       make(map[string]*Session),
		personas:       opts.Personas,
		defaultPersona: defaultPersona,
		injector:       injector,
		gateway:        opts.Gateway,
		transcriber:    opts.Transcriber,
		discovery:      opts.Discovery,
	}
}

// Personas exposes the preset store.
func (s *Service) Personas() persona.Store {
	return s.personas
}

// CreateSession provisions a session bound to a persona preset. An empty
// personaID uses the default preset; an empty modelID uses the catalog default.
func (s *Service) CreateSession(ctx context.Context, personaID, modelID string) (chat.SessionView, error) {
	if personaID == "" {
		personaID = s.defaultPersona
	}

	preset, ok := s.findPersona(personaID)
	if !ok {
		return chat.SessionView{}, ErrPersonaNotFound
	}

	if s.discovery == nil {
		return chat.SessionView{}, ErrDiscoveryMissing
	}
	catalog := s.discovery.Discover(ctx)

	selected := catalog.DefaultModel
	if modelID != "" {
		if !catalog.Contains(modelID) {
			return chat.SessionView{}, ErrUnknownModel
		}
		selected = modelID
	}

	sess := newSession(uuid.NewString(), preset.ID, preset.Instruction, catalog, selected)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	log.Printf("[session] created session=%s persona=%s model=%s catalog=%s", sess.id, preset.ID, selected, catalog.Source)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// GetSession returns a snapshot of the session.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.SessionView, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// DeleteSession drops the session when the browser session ends.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	log.Printf("[session] deleted session=%s", sessionID)
	return nil
}

// Reset clears the transcript. The next submission becomes turn 0 again and
// pins the instruction current at that time.
func (s *Service) Reset(_ context.Context, sessionID string) (chat.SessionView, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.inFlight {
		return chat.SessionView{}, ErrRequestInFlight
	}
	sess.clear()
	log.Printf("[session] reset session=%s", sessionID)
	return sess.view(), nil
}

// SetInstruction edits the persona text. It has no effect on a transcript
// whose turn 0 was already sent.
func (s *Service) SetInstruction(_ context.Context, sessionID, instruction string) (chat.SessionView, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.instruction = strings.TrimSpace(instruction)
	return sess.view(), nil
}

// ApplyPreset switches the session to another persona preset and loads its
// instruction text. Like SetInstruction it is not retroactive.
func (s *Service) ApplyPreset(_ context.Context, sessionID, personaID string) (chat.SessionView, error) {
	preset, ok := s.findPersona(personaID)
	if !ok {
		return chat.SessionView{}, ErrPersonaNotFound
	}

	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.personaID = preset.ID
	sess.instruction = preset.Instruction
	return sess.view(), nil
}

// SelectModel changes the model used by the next request.
func (s *Service) SelectModel(_ context.Context, sessionID, modelID string) (chat.SessionView, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.catalog.Contains(modelID) {
		return chat.SessionView{}, ErrUnknownModel
	}
	sess.model = modelID
	return sess.view(), nil
}

// RefreshModels reruns discovery for the session. The selected model is kept
// when it is still offered.
func (s *Service) RefreshModels(ctx context.Context, sessionID string) (chat.SessionView, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.SessionView{}, err
	}
	if s.discovery == nil {
		return chat.SessionView{}, ErrDiscoveryMissing
	}

	catalog := s.discovery.Discover(ctx)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.catalog = catalog
	if !catalog.Contains(sess.model) {
		sess.model = catalog.DefaultModel
	}
	return sess.view(), nil
}

// SubmitText appends a user text turn and asks the model for a reply.
func (s *Service) SubmitText(ctx context.Context, sessionID, text string) (chat.Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Outcome{}, ErrEmptySubmission
	}
	turn := chat.NewUserText(text)
	return s.submit(ctx, sessionID, &turn)
}

// SubmitAudio appends a voice turn. caption is optional.
func (s *Service) SubmitAudio(ctx context.Context, sessionID string, data []byte, mimeType, caption string) (chat.Outcome, error) {
	if len(data) == 0 {
		return chat.Outcome{}, ErrEmptySubmission
	}
	turn := chat.NewUserAudio(data, mimeType, strings.TrimSpace(caption))
	return s.submit(ctx, sessionID, &turn)
}

// Retry resends the unanswered user turn left by a failed request, for
// example after picking another model.
func (s *Service) Retry(ctx context.Context, sessionID string) (chat.Outcome, error) {
	return s.submit(ctx, sessionID, nil)
}

// submit drives Idle -> AwaitingResponse -> RenderedSuccess|RenderedError -> Idle.
// A nil turn resends the pending user turn.
func (s *Service) submit(ctx context.Context, sessionID string, turn *chat.Turn) (chat.Outcome, error) {
	if s.gateway == nil {
		return chat.Outcome{}, ErrGatewayMissing
	}

	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.Outcome{}, err
	}

	sess.mu.Lock()
	if sess.inFlight {
		sess.mu.Unlock()
		return chat.Outcome{}, ErrRequestInFlight
	}

	last, hasLast := sess.transcript.Last()
	pending := hasLast && last.Role == chat.RoleUser

	if turn == nil {
		if !pending {
			sess.mu.Unlock()
			return chat.Outcome{}, ErrNothingToRetry
		}
	} else {
		// An unanswered turn from a failed request is superseded so roles keep
		// alternating.
		if pending {
			sess.transcript.DropLast()
		}
		turn.ID = uuid.NewString()
		turn.CreatedAt = time.Now().UTC()
		sess.transcript.Append(*turn)
	}

	if !sess.pinnedSet {
		sess.pinned = sess.instruction
		sess.pinnedSet = true
	}

	pendingTurn, _ := sess.transcript.Last()
	modelID := sess.model
	sess.inFlight = true
	sess.state = chat.StateAwaitingResponse
	sess.lastError = ""
	sess.mu.Unlock()

	reply, sendErr := s.exchange(ctx, sess, pendingTurn, modelID)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.inFlight = false
	sess.state = chat.StateIdle

	if sendErr != nil {
		gwErr := ai.NewGatewayError(modelID, sendErr)
		sess.lastError = gwErr.Error()
		log.Printf("[session] model request failed session=%s model=%s: %v", sessionID, modelID, gwErr)
		return chat.Outcome{State: chat.StateRenderedError, Error: sess.lastError}, nil
	}

	assistant := chat.NewAssistantText(reply)
	assistant.ID = uuid.NewString()
	assistant.CreatedAt = time.Now().UTC()
	sess.transcript.Append(assistant)

	log.Printf("[session] reply rendered session=%s model=%s turns=%d", sessionID, modelID, sess.transcript.Len())
	return chat.Outcome{State: chat.StateRenderedSuccess, Reply: &assistant}, nil
}

// exchange transcribes the pending voice turn if it has no transcript yet, then
// sends the payload. Runs without the session lock; inFlight keeps the
// transcript and pinned instruction stable meanwhile.
func (s *Service) exchange(ctx context.Context, sess *Session, pending chat.Turn, modelID string) (string, error) {
	if pending.Content.HasAudio() && pending.Content.Transcript == "" && s.transcriber != nil {
		text, err := s.transcriber.Transcribe(ctx, pending.Content.Audio)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrNoSpeech
		}

		sess.mu.Lock()
		sess.transcript.SetTranscript(pending.ID, text)
		sess.mu.Unlock()
		log.Printf("[session] transcribed voice turn session=%s turn=%s", sess.id, pending.ID)
	}

	sess.mu.Lock()
	payload := s.injector.BuildOutboundPayload(sess.transcript.All(), sess.pinned)
	sess.mu.Unlock()

	return s.gateway.Send(ctx, modelID, payload)
}

func (s *Service) lookup(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) findPersona(id string) (persona.Persona, bool) {
	if s.personas == nil {
		return persona.Persona{}, false
	}
	return s.personas.FindByID(id)
}
