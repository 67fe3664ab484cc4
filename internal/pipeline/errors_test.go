package pipeline

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestStageError_Unwrap(t *testing.T) {
	e := stageError(StageSearch, "what won the game", ErrSearchUnavailable)
	require.ErrorIs(t, e, ErrSearchUnavailable)
	require.Contains(t, e.Error(), "what won the game")
}

func TestStageError_ExcerptBounded(t *testing.T) {
	long := strings.Repeat("x", 200)
	e := stageError(StageGenerate, long, errors.New("boom"))
	require.Equal(t, strings.Repeat("x", excerptLen)+"...", e.Excerpt)

	short := stageError(StageGenerate, "hi", errors.New("boom"))
	require.Equal(t, "hi", short.Excerpt)
}

func TestStageError_ExcerptStaysValidUTF8(t *testing.T) {
	// 120 bytes of 3-byte runes; a byte-offset cut at 80 would land
	// mid-rune.
	input := strings.Repeat("日", 40)
	e := stageError(StageGenerate, input, errors.New("boom"))

	require.True(t, utf8.ValidString(e.Excerpt), "excerpt split a rune: %q", e.Excerpt)
	require.True(t, strings.HasSuffix(e.Excerpt, "..."))
	require.LessOrEqual(t, len(e.Excerpt), excerptLen+len("..."))
}
