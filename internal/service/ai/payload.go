package ai

import (
	"strings"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
	"github.com/zhouzirui/crisis-desk/backend/internal/model/persona"
)

// Separator between the instruction block and the user's own words.
const Separator = "--------------------------------------------------"

// Part is one piece of an outbound message: text or an audio clip. An audio
// part carries the clip's transcript when one was made at submission.
type Part struct {
	Text       string
	Audio      *chat.Audio
	Transcript string
}

// IsAudio reports whether the part carries audio.
func (p Part) IsAudio() bool {
	return p.Audio != nil
}

// Message is one outbound element handed to the gateway.
type Message struct {
	Role  chat.Role
	Parts []Part
}

// Text joins the text parts of the message.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if !p.IsAudio() && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Payload is exactly what the gateway sends for the current turn. System is
// only set under the system strategy.
type Payload struct {
	System   string
	Messages []Message
}

// Injector builds outbound payloads from a transcript and an instruction.
type Injector struct {
	strategy persona.Strategy
}

// NewInjector creates an Injector for the deployment's strategy.
func NewInjector(strategy persona.Strategy) *Injector {
	if strategy == "" {
		strategy = persona.StrategyInline
	}
	return &Injector{strategy: strategy}
}

// Strategy returns the configured strategy.
func (i *Injector) Strategy() persona.Strategy {
	return i.strategy
}

// BuildOutboundPayload copies turns into outbound messages and applies the
// instruction once. Stored turns are never modified.
func (i *Injector) BuildOutboundPayload(turns []chat.Turn, instruction string) Payload {
	instruction = strings.TrimSpace(instruction)

	payload := Payload{Messages: make([]Message, 0, len(turns))}
	if i.strategy == persona.StrategySystem {
		payload.System = instruction
	}

	for idx, turn := range turns {
		msg := Message{Role: turn.Role, Parts: partsOf(turn.Content)}
		if idx == 0 && turn.Role == chat.RoleUser && i.strategy == persona.StrategyInline && instruction != "" {
			msg.Parts = wrapFirst(msg.Parts, instruction)
		}
		payload.Messages = append(payload.Messages, msg)
	}
	return payload
}

// FormatInstruction renders the labeled instruction block around a user message.
func FormatInstruction(instruction, userText string) string {
	var b strings.Builder
	b.WriteString("SYSTEM INSTRUCTIONS:\n")
	b.WriteString(instruction)
	b.WriteString("\n")
	b.WriteString(Separator)
	b.WriteString("\nUSER MESSAGE:\n")
	b.WriteString(userText)
	return b.String()
}

func partsOf(c chat.Content) []Part {
	parts := make([]Part, 0, 2)
	if c.Text != "" {
		parts = append(parts, Part{Text: c.Text})
	}
	if c.HasAudio() {
		parts = append(parts, Part{Audio: c.Audio, Transcript: c.Transcript})
	}
	return parts
}

// wrapFirst prefixes the first text part, or inserts a leading text part when
// the turn is audio only.
func wrapFirst(parts []Part, instruction string) []Part {
	for j, p := range parts {
		if !p.IsAudio() {
			out := append([]Part(nil), parts...)
			out[j] = Part{Text: FormatInstruction(instruction, p.Text)}
			return out
		}
	}
	return append([]Part{{Text: FormatInstruction(instruction, "")}}, parts...)
}
