package destination

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClipNoopWhenUnderLimit(t *testing.T) {
	text := "short text"
	assert.Equal(t, text, Clip(text, "...", 100))
}

func TestClipTruncatesAndAppendsMarker(t *testing.T) {
	text := strings.Repeat("a", 10)
	clipped := Clip(text, "...", 5)

	assert.Equal(t, "aa...", clipped)
	assert.Len(t, []rune(clipped), 5)
}

func TestClipClampsKeepToZeroWhenMarkerExceedsLimit(t *testing.T) {
	clipped := Clip("hello world", "this marker is too long", 3)
	assert.Equal(t, "this marker is too long", clipped)
}

func TestTargetKeyFormatsByKind(t *testing.T) {
	telegram := Target{Kind: KindTelegram, ChatID: "123"}
	assert.Equal(t, "telegram:123", telegram.Key())

	slack := Target{Kind: KindSlack, Channel: "C0ABC"}
	assert.Equal(t, "slack:C0ABC", slack.Key())
}

func TestKindIsValid(t *testing.T) {
	assert.True(t, KindTelegram.IsValid())
	assert.True(t, KindSlack.IsValid())
	assert.False(t, Kind("discord").IsValid())
}
