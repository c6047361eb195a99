package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sferrors "github.com/matzehuels/stackfix/pkg/errors"
)

func TestTranscriptAppendIsImmutable(t *testing.T) {
	base := NewTranscript("system").User("first")
	a := base.Assistant("reply A")
	b := base.Assistant("reply B")

	if base.Len() != 1 {
		t.Errorf("base.Len() = %d, want 1", base.Len())
	}
	if last, _ := a.Last(); last.Content != "reply A" {
		t.Errorf("a last = %q", last.Content)
	}
	if last, _ := b.Last(); last.Content != "reply B" {
		t.Errorf("b last = %q, branches must not share turns", last.Content)
	}
	if a.System() != "system" {
		t.Errorf("System() = %q", a.System())
	}

	msgs := a.Messages()
	msgs[0].Content = "mutated"
	if a.Messages()[0].Content != "first" {
		t.Error("Messages() must return a copy")
	}
}

func TestTranscriptJSON(t *testing.T) {
	orig := NewTranscript("sys").User("q").Assistant("a")
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	var got Transcript
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.System() != "sys" || got.Len() != 2 {
		t.Errorf("round trip = %+v", got)
	}
	if last, _ := got.Last(); last.Role != RoleAssistant {
		t.Errorf("last role = %q", last.Role)
	}
}

func TestScriptedReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s := NewScripted("one").ThenError(boom).Then("three")

	tr := NewTranscript("sys").User("go")
	if out, err := s.GenerateWithHistory(ctx, tr, Options{}); err != nil || out != "one" {
		t.Fatalf("call 1 = %q, %v", out, err)
	}
	if _, err := s.GenerateWithHistory(ctx, tr, Options{}); !errors.Is(err, boom) {
		t.Fatalf("call 2 error = %v, want boom", err)
	}
	if out, _ := s.Generate(ctx, "plain", Options{}); out != "three" {
		t.Fatalf("call 3 = %q", out)
	}
	if _, err := s.Generate(ctx, "again", Options{}); err == nil {
		t.Error("exhausted script should fail")
	}
	if n := len(s.Calls()); n != 4 {
		t.Errorf("Calls() = %d, want 4", n)
	}
	if s.Remaining() != 0 {
		t.Errorf("Remaining() = %d", s.Remaining())
	}
}

type slowEngine struct{}

func (slowEngine) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return slowEngine{}.GenerateWithHistory(ctx, Transcript{}, opts)
}

func (slowEngine) GenerateWithHistory(ctx context.Context, _ Transcript, _ Options) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestCallTimeout(t *testing.T) {
	_, err := Call(context.Background(), slowEngine{}, NewTranscript(""), Options{Timeout: 10 * time.Millisecond})
	if !sferrors.Is(err, sferrors.ErrCodeTimeout) {
		t.Errorf("Call() error = %v, want TIMEOUT", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fenced no tag", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose", "Here you go:\n{\"a\":{\"b\":2}}\nThanks", `{"a":{"b":2}}`, false},
		{"none", "no json here", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, want error %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ A int }
	if err := DecodeJSON("```\n{\"A\": 3}\n```", &v); err != nil {
		t.Fatal(err)
	}
	if v.A != 3 {
		t.Errorf("A = %d", v.A)
	}
	if err := DecodeJSON("{not json}", &v); err == nil {
		t.Error("expected decode error")
	}
}

func TestTranscriptWindow(t *testing.T) {
	tr := NewTranscript("sys").User("u1").Assistant("a1").User("u2").Assistant("a2").User("u3")

	if got := tr.Window(10); got.Len() != 5 {
		t.Errorf("large window changed transcript: %d turns", got.Len())
	}
	w := tr.Window(4)
	msgs := w.Messages()
	if len(msgs) != 3 || msgs[0].Content != "u2" {
		t.Errorf("window = %+v, want it to start at u2", msgs)
	}
	if w.System() != "sys" {
		t.Error("system prompt dropped")
	}
	if tr.Len() != 5 {
		t.Error("Window mutated the receiver")
	}
}
