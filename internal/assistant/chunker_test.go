package assistant

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/chirino/ufdr-service/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifact(typ, text string) model.Artifact {
	return model.Artifact{ID: uuid.New(), Type: typ, ExtractedText: &text}
}

func TestSplitter_ShortTextIsOneChunk(t *testing.T) {
	s := Splitter{ChunkSize: 3000, ChunkOverlap: 300}
	require.Equal(t, []string{"Ravi Sharma travelled to Mumbai"}, s.Split("  Ravi Sharma travelled to Mumbai \n"))
	require.Empty(t, s.Split("   \n\n  "))
}

func TestSplitter_ChunksRespectSizeAndOverlap(t *testing.T) {
	words := make([]string, 0, 400)
	for i := 0; i < 400; i++ {
		words = append(words, "word"+strings.Repeat("x", i%5))
	}
	text := strings.Join(words, " ")
	s := Splitter{ChunkSize: 100, ChunkOverlap: 20}

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100)
	}
	// Consecutive chunks share the tail of the previous one.
	for i := 1; i < len(chunks); i++ {
		assert.True(t, sharesWords(chunks[i-1], chunks[i]), "chunk %d should overlap chunk %d", i, i-1)
	}
}

// sharesWords reports whether next starts with the last k words of prev for some k.
func sharesWords(prev, next string) bool {
	p, n := strings.Fields(prev), strings.Fields(next)
	for k := 1; k <= len(p) && k <= len(n); k++ {
		if strings.Join(p[len(p)-k:], " ") == strings.Join(n[:k], " ") {
			return true
		}
	}
	return false
}

func TestSplitter_PrefersParagraphBoundaries(t *testing.T) {
	p1 := strings.Repeat("a", 60)
	p2 := strings.Repeat("b", 60)
	s := Splitter{ChunkSize: 100, ChunkOverlap: 0}
	require.Equal(t, []string{p1, p2}, s.Split(p1+"\n\n"+p2))
}

func TestSplitter_SplitsUnbrokenText(t *testing.T) {
	s := Splitter{ChunkSize: 10, ChunkOverlap: 2}
	chunks := s.Split(strings.Repeat("z", 35))
	require.Greater(t, len(chunks), 3)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), 10)
	}
}

func TestAssembler_RendersTypeTags(t *testing.T) {
	a := Assembler{Splitter: Splitter{ChunkSize: 3000, ChunkOverlap: 300}, Budget: 200000}
	ctx := a.Assemble([]model.Artifact{
		artifact("call", "Outgoing call to +919876543210"),
		{ID: uuid.New(), Type: "image"},
		artifact("message", "Meet at the station"),
	})
	require.Equal(t, "[call] Outgoing call to +919876543210\n[message] Meet at the station\n", ctx)
}

func TestAssembler_StaysWithinBudgetAndStopsEntirely(t *testing.T) {
	a := Assembler{Splitter: Splitter{ChunkSize: 50, ChunkOverlap: 0}, Budget: 120}
	long := strings.Repeat("alpha beta ", 20)
	ctx := a.Assemble([]model.Artifact{
		artifact("message", long),
		artifact("call", "short"),
	})
	require.LessOrEqual(t, len(ctx), 120)
	require.NotEmpty(t, ctx)
	require.NotContains(t, ctx, "[call] short")
	for _, line := range strings.Split(strings.TrimSuffix(ctx, "\n"), "\n") {
		require.True(t, strings.HasPrefix(line, "[message] "))
	}
}

func TestAssembler_NeverReorders(t *testing.T) {
	a := Assembler{Splitter: Splitter{ChunkSize: 3000}, Budget: 1000}
	ctx := a.Assemble([]model.Artifact{artifact("b", "second"), artifact("a", "first")})
	require.Less(t, strings.Index(ctx, "second"), strings.Index(ctx, "first"))
}
