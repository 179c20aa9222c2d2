package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeIsValid(t *testing.T) {
	assert.True(t, TypeUser.IsValid())
	assert.True(t, TypeAssistant.IsValid())
	assert.True(t, TypeToolCall.IsValid())
	assert.True(t, TypeThinking.IsValid())
	assert.True(t, TypeDuration.IsValid())
	assert.True(t, TypeSystem.IsValid())
	assert.False(t, Type("BOGUS").IsValid())
}

func TestNewSetsIDAndType(t *testing.T) {
	b := New("b1", TypeUser)
	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, TypeUser, b.Type)
	assert.Empty(t, b.Text)
}
