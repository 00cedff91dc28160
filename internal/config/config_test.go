package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolvedTempDir_DefaultsToOSTempDir(t *testing.T) {
	var cfg Config
	require.Equal(t, os.TempDir(), cfg.ResolvedTempDir())
}

func TestResolvedTempDir_UsesConfiguredValue(t *testing.T) {
	cfg := Config{TempDir: " /tmp/custom-dir "}
	require.Equal(t, "/tmp/custom-dir", cfg.ResolvedTempDir())
}

func TestDefaultConfig_RetrievalDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 24*time.Hour, cfg.SearchCacheTTL)
	require.Equal(t, 7*24*time.Hour, cfg.AnswerCacheTTL)
	require.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	require.Equal(t, 3000, cfg.ChunkSize)
	require.Equal(t, 300, cfg.ChunkOverlap)
	require.Equal(t, 200000, cfg.ContextBudget)
	require.Equal(t, 100, cfg.DefaultTopK)
	require.Equal(t, 300, cfg.MaxTopK)
}

func TestQdrantAddress(t *testing.T) {
	cfg := Config{QdrantHost: "qdrant", QdrantPort: 7000}
	require.Equal(t, "qdrant:7000", cfg.QdrantAddress())

	cfg = Config{QdrantHost: "qdrant:6335", QdrantPort: 7000}
	require.Equal(t, "qdrant:6335", cfg.QdrantAddress())

	cfg = Config{}
	require.Equal(t, "localhost:6334", cfg.QdrantAddress())
}

func TestParseAPIKeys(t *testing.T) {
	keys, err := ParseAPIKeys("lab-agent=abc123, triage=def456")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"abc123": "lab-agent", "def456": "triage"}, keys)

	_, err = ParseAPIKeys("missing-separator")
	require.Error(t, err)
}
