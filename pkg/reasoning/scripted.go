package reasoning

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is a deterministic [Engine] that replays canned responses in
// order and records every transcript it receives.
type Scripted struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     []Transcript
}

type scriptedResponse struct {
	text string
	err  error
}

// NewScripted returns an engine that answers with responses in order.
func NewScripted(responses ...string) *Scripted {
	s := &Scripted{}
	for _, r := range responses {
		s.Then(r)
	}
	return s
}

// Then queues a response and returns s.
func (s *Scripted) Then(text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scriptedResponse{text: text})
	return s
}

// ThenError queues a failing call and returns s.
func (s *Scripted) ThenError(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scriptedResponse{err: err})
	return s
}

// Generate implements [Engine].
func (s *Scripted) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return s.GenerateWithHistory(ctx, Transcript{}.User(prompt), opts)
}

// GenerateWithHistory implements [Engine]. It fails once the script is
// exhausted.
func (s *Scripted) GenerateWithHistory(ctx context.Context, t Transcript, _ Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, t)
	if len(s.responses) == 0 {
		return "", fmt.Errorf("scripted engine exhausted after %d calls", len(s.calls)-1)
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r.text, r.err
}

// Calls returns the transcripts received so far.
func (s *Scripted) Calls() []Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transcript(nil), s.calls...)
}

// Remaining returns how many queued responses are left.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

var _ Engine = (*Scripted)(nil)
