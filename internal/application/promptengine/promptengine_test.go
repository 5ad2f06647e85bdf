package promptengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStub_InitialMessages_ReturnsPlaceholder(t *testing.T) {
	s := NewStub()
	cfg, messages, err := s.InitialMessages(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Empty(t, cfg)
	require.Len(t, messages, 1)
	assert.Equal(t, "Begin the story.", messages[0].Text)
	assert.Equal(t, []string{"Continue"}, messages[0].Options)
}

func TestStub_ImplementsEngine(t *testing.T) {
	var _ Engine = (*Stub)(nil)
}
