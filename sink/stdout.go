package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/fieldpost/nflbot/scoreboard"
)

// Stdout writes change events as JSON lines to an io.Writer (default
// os.Stdout).
type Stdout struct {
	name string
	mu   sync.Mutex
	enc  *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(name string, w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{name: name, enc: json.NewEncoder(w)}
}

func (s *Stdout) Name() string { return s.name }

func (s *Stdout) Send(_ context.Context, ev scoreboard.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: "change_event", Data: ev})
}

func (s *Stdout) Close() error { return nil }
