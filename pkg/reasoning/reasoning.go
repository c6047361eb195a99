// Package reasoning defines the text-completion service that analyses
// conflicts and proposes version changes.
//
// The engine is opaque: it takes a [Transcript] and returns text. Callers own
// the transcript and thread it through each call explicitly; a Transcript is
// an immutable value, so every [Transcript.Append] returns a new one and a
// recorded transcript can be replayed against [Scripted] in tests.
package reasoning

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matzehuels/stackfix/pkg/errors"
)

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tune a single engine call. Zero values select engine defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds the call. Expiry surfaces as a TIMEOUT error.
	Timeout time.Duration
}

// Engine is a text-completion service.
type Engine interface {
	// Generate completes a single user prompt.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)

	// GenerateWithHistory completes the conversation in t.
	GenerateWithHistory(ctx context.Context, t Transcript, opts Options) (string, error)
}

// Call invokes e with opts.Timeout applied. A deadline expiry is reported
// with code TIMEOUT.
func Call(ctx context.Context, e Engine, t Transcript, opts Options) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	out, err := e.GenerateWithHistory(ctx, t, opts)
	if err != nil {
		return "", errors.Timeout(err, "reasoning engine did not answer within %s", opts.Timeout)
	}
	return out, nil
}

// Transcript is an immutable conversation: a system prompt plus turns.
// The zero value is an empty transcript with no system prompt.
type Transcript struct {
	system   string
	messages []Message
}

// NewTranscript starts a transcript with the given system prompt.
func NewTranscript(system string) Transcript {
	return Transcript{system: system}
}

// System returns the system prompt.
func (t Transcript) System() string { return t.system }

// Len returns the number of turns.
func (t Transcript) Len() int { return len(t.messages) }

// Messages returns a copy of the turns.
func (t Transcript) Messages() []Message {
	return append([]Message(nil), t.messages...)
}

// Last returns the final turn, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Append returns a new transcript with one more turn. t is unchanged.
func (t Transcript) Append(role Role, content string) Transcript {
	msgs := make([]Message, len(t.messages), len(t.messages)+1)
	copy(msgs, t.messages)
	return Transcript{system: t.system, messages: append(msgs, Message{Role: role, Content: content})}
}

// Window returns a transcript holding at most the last n turns, starting
// at a user turn. The system prompt is kept.
func (t Transcript) Window(n int) Transcript {
	if n <= 0 || len(t.messages) <= n {
		return t
	}
	msgs := t.messages[len(t.messages)-n:]
	for len(msgs) > 0 && msgs[0].Role != RoleUser {
		msgs = msgs[1:]
	}
	return Transcript{system: t.system, messages: append([]Message(nil), msgs...)}
}

// User appends a user turn.
func (t Transcript) User(content string) Transcript { return t.Append(RoleUser, content) }

// Assistant appends an assistant turn.
func (t Transcript) Assistant(content string) Transcript { return t.Append(RoleAssistant, content) }

type transcriptJSON struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// MarshalJSON encodes the transcript for run history.
func (t Transcript) MarshalJSON() ([]byte, error) {
	return json.Marshal(transcriptJSON{System: t.system, Messages: t.messages})
}

// UnmarshalJSON decodes a transcript written by MarshalJSON.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var raw transcriptJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Transcript{system: raw.System, messages: raw.Messages}
	return nil
}
