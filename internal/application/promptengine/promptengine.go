// Package promptengine defines the thin boundary this server calls across
// to the external character-message composition service (§6 interface K).
// The real prompt-composition logic lives outside this module; Engine is
// the seam a production deployment wires a concrete client into.
package promptengine

import "context"

// CharacterMessage is one candidate opening message offered to the caller,
// together with the selectable continuations attached to it.
type CharacterMessage struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Engine composes the initial character-selection turn for a session.
type Engine interface {
	InitialMessages(ctx context.Context, sessionID string) (config map[string]interface{}, messages []CharacterMessage, err error)
}

// Stub is a no-op Engine used where no external prompt-composition service
// is configured. It returns a single placeholder message so /battle's
// null-input path stays exercisable end to end without that dependency.
type Stub struct{}

// NewStub constructs a Stub engine.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) InitialMessages(ctx context.Context, sessionID string) (map[string]interface{}, []CharacterMessage, error) {
	return map[string]interface{}{}, []CharacterMessage{
		{Text: "Begin the story.", Options: []string{"Continue"}},
	}, nil
}
