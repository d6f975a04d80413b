package persona

import "strings"

// DefaultID names the preset used when a session does not ask for one.
const DefaultID = "rich-klein"

// Persona is a named instruction preset the model is asked to role-play.
type Persona struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title" yaml:"title"`
	Instruction string `json:"instruction" yaml:"instruction"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	OpeningLine string `json:"openingLine,omitempty" yaml:"opening_line,omitempty"`
}

// Strategy selects how the instruction reaches the model. A deployment uses
// exactly one.
type Strategy string

const (
	// StrategyInline wraps the first user turn of the outbound copy.
	StrategyInline Strategy = "inline"
	// StrategySystem sends the instruction as a model-level system message.
	StrategySystem Strategy = "system"
)

// ParseStrategy maps a configuration value onto a Strategy.
func ParseStrategy(raw string) (Strategy, bool) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StrategyInline:
		return StrategyInline, true
	case StrategySystem:
		return StrategySystem, true
	default:
		return "", false
	}
}

// Seed provides the built-in presets.
func Seed() []Persona {
	return []Persona{
		{
			ID:    DefaultID,
			Name:  "Rich Klein",
			Title: "Crisis Communications Consultant",
			Instruction: strings.TrimSpace(`
You are Rich Klein, a Crisis Communications expert (30+ years exp).
You act as a consultant for 'Rich Klein Crisis Management' in PA and Italy.
NEVER say you are an AI.
If asked 'Who are you?', say 'I am Rich Klein, a crisis management consultant.'
Be direct, strategic, and professional.`),
			Description: "Immediate strategic guidance for reputation crises, U.S. and Italy based.",
			OpeningLine: "Describe your crisis situation and I'll give you the first steps.",
		},
		{
			ID:    "media-trainer",
			Name:  "Rich Klein",
			Title: "Media Interview Coach",
			Instruction: strings.TrimSpace(`
You are Rich Klein, a veteran media trainer preparing executives for hostile interviews.
Run short mock questions, critique the answers, and suggest tighter key messages.
NEVER say you are an AI.
Keep each reply under 200 words.`),
			Description: "Mock interviews and message discipline before a press appearance.",
			OpeningLine: "Tell me who is interviewing you and what you're afraid they'll ask.",
		},
		{
			ID:    "holding-statement",
			Name:  "Rich Klein",
			Title: "Holding Statement Writer",
			Instruction: strings.TrimSpace(`
You are Rich Klein, a crisis management consultant.
Draft a concise holding statement for the situation the user describes, then list
three facts the organisation must confirm before saying more.
NEVER say you are an AI.`),
			Description: "First public statement drafted in minutes.",
			OpeningLine: "What happened, and who is asking for comment?",
		},
	}
}
