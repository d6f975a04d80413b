package chat

import (
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NormalizeRole folds provider spellings ("model", "bot") onto the two roles the
// transcript knows about. Unknown values fall back to user.
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "assistant", "model", "bot":
		return RoleAssistant
	default:
		return RoleUser
	}
}

// AudioPlaceholder is shown in place of an audio-only user turn.
const AudioPlaceholder = "🎤 Voice message"

// Audio carries a recorded clip attached to a voice turn.
type Audio struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// Content is what a turn says: text, an audio clip, or both. Transcript is the
// clip's speech as text, filled once when the turn is submitted.
type Content struct {
	Text       string `json:"text,omitempty"`
	Audio      *Audio `json:"audio,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// HasAudio reports whether the content carries a non-empty clip.
func (c Content) HasAudio() bool {
	return c.Audio != nil && len(c.Audio.Data) > 0
}

// Turn is one entry of a conversation transcript.
type Turn struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     Content   `json:"-"`
	DisplayText string    `json:"displayText"`
	HasAudio    bool      `json:"hasAudio,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewUserText builds a plain text user turn.
func NewUserText(text string) Turn {
	return Turn{
		Role:        RoleUser,
		Content:     Content{Text: text},
		DisplayText: text,
	}
}

// NewUserAudio builds a voice turn. An optional caption becomes both the text
// part and the display text.
func NewUserAudio(data []byte, mimeType, caption string) Turn {
	display := caption
	if strings.TrimSpace(display) == "" {
		display = AudioPlaceholder
	}
	return Turn{
		Role: RoleUser,
		Content: Content{
			Text:  caption,
			Audio: &Audio{Data: data, MIMEType: mimeType, Size: len(data)},
		},
		DisplayText: display,
		HasAudio:    true,
	}
}

// NewAssistantText builds a model reply turn.
func NewAssistantText(text string) Turn {
	return Turn{
		Role:        RoleAssistant,
		Content:     Content{Text: text},
		DisplayText: text,
	}
}
