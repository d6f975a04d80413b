package chat

import "time"

// TurnState is the submission state of a session.
type TurnState string

const (
	StateIdle             TurnState = "idle"
	StateAwaitingResponse TurnState = "awaiting_response"
	StateRenderedSuccess  TurnState = "rendered_success"
	StateRenderedError    TurnState = "rendered_error"
)

// ModelInfo describes one model the gateway can talk to.
type ModelInfo struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName,omitempty"`
	SupportsChat bool   `json:"supportsChat"`
}

// CatalogSource tells whether a model list came from the provider or from the
// configured fallback.
type CatalogSource string

const (
	CatalogListed   CatalogSource = "listed"
	CatalogFallback CatalogSource = "fallback"
)

// ModelCatalog is the outcome of model discovery for a session.
type ModelCatalog struct {
	Models       []string      `json:"models"`
	Source       CatalogSource `json:"source"`
	DefaultModel string        `json:"defaultModel"`
	Error        string        `json:"error,omitempty"`
}

// Contains reports whether id is one of the catalog models.
func (c ModelCatalog) Contains(id string) bool {
	for _, m := range c.Models {
		if m == id {
			return true
		}
	}
	return false
}

// SessionView is the client-facing snapshot of a session. It never carries the
// pinned persona instruction inside turns.
type SessionView struct {
	ID          string       `json:"id"`
	PersonaID   string       `json:"personaId"`
	Instruction string       `json:"instruction"`
	Model       string       `json:"model"`
	Catalog     ModelCatalog `json:"catalog"`
	State       TurnState    `json:"state"`
	LastError   string       `json:"lastError,omitempty"`
	Transcript  []Turn       `json:"transcript"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Outcome is the result of one submission.
type Outcome struct {
	State TurnState `json:"state"`
	Reply *Turn     `json:"reply,omitempty"`
	Error string    `json:"error,omitempty"`
}
