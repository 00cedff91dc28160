package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalEmbedder_NormalizedAndDeterministic(t *testing.T) {
	e := New(64)
	vecs, err := e.EmbedTexts(context.Background(), []string{"Call from Ravi Sharma", "Call from Ravi Sharma", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.Len(t, vecs[0], 64)
	require.Equal(t, vecs[0], vecs[1])

	var sum float64
	for _, v := range vecs[0] {
		sum += float64(v * v)
	}
	require.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)

	for _, v := range vecs[2] {
		require.Zero(t, v)
	}
}

func TestTokenize_KeepsPhoneNumbers(t *testing.T) {
	require.Equal(t, []string{"call", "+919876543210", "ravi@example", "com"},
		tokenize("Call +919876543210, ravi@example.com"))
}
