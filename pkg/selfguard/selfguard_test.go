//go:build linux

package selfguard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOOMScoreAdj_WritesExactValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oom_score_adj")
	require.NoError(t, writeOOMScoreAdj(path, -1000))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-1000", string(b))
}

func TestWriteOOMScoreAdj_MissingPathIsError(t *testing.T) {
	err := writeOOMScoreAdj(filepath.Join(t.TempDir(), "nonexistent-dir", "oom_score_adj"), -1000)
	assert.Error(t, err)
}
