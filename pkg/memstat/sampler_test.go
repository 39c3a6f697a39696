package memstat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureMemInfo = `MemTotal:        8000000 kB
MemFree:          500000 kB
MemAvailable:    4000000 kB
Buffers:          100000 kB
Cached:          900000 kB
SwapTotal:       2000000 kB
SwapFree:        1500000 kB
SwapCached:            0 kB
`

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meminfo"), []byte(contents), 0o644))
	return dir
}

func TestTake_ParsesKnownFields(t *testing.T) {
	dir := writeFixture(t, fixtureMemInfo)
	s, err := Take(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(8000000), s.MemTotalKiB)
	assert.Equal(t, uint64(4000000), s.MemAvailableKiB)
	assert.Equal(t, uint64(2000000), s.SwapTotalKiB)
	assert.Equal(t, uint64(1500000), s.SwapFreeKiB)
}

func TestTake_MatchesExpectedSampleExactly(t *testing.T) {
	dir := writeFixture(t, fixtureMemInfo)
	s, err := Take(dir)
	require.NoError(t, err)

	want := Sample{
		MemTotalKiB:     8000000,
		MemAvailableKiB: 4000000,
		SwapTotalKiB:    2000000,
		SwapFreeKiB:     1500000,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Sample mismatch (-want +got):\n%s", diff)
	}
}

func TestTake_MissingFieldIsError(t *testing.T) {
	dir := writeFixture(t, "MemTotal: 8000000 kB\n")
	_, err := Take(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required fields")
}

func TestTake_DuplicateLineKeepsFirst(t *testing.T) {
	dir := writeFixture(t, fixtureMemInfo+"MemTotal: 1 kB\n")
	s, err := Take(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(8000000), s.MemTotalKiB)
}

func TestSample_UsedIsTotalMinusAvailable(t *testing.T) {
	s := Sample{MemTotalKiB: 1000, MemAvailableKiB: 400}
	assert.Equal(t, uint64(600), s.MemUsedKiB())
	assert.InDelta(t, 60.0, s.MemUsedPercent(), 0.0001)
}

func TestSample_SwaplessHostReportsZeroPercent(t *testing.T) {
	s := Sample{SwapTotalKiB: 0, SwapFreeKiB: 0}
	assert.Equal(t, uint64(0), s.SwapUsedKiB())
	assert.Equal(t, 0.0, s.SwapUsedPercent())
}

func TestSample_FreePercentIsComplementOfUsed(t *testing.T) {
	s := Sample{MemTotalKiB: 1000, MemAvailableKiB: 400, SwapTotalKiB: 500, SwapFreeKiB: 100}
	assert.InDelta(t, 40.0, s.MemFreePercent(), 0.0001)
	assert.InDelta(t, 20.0, s.SwapFreePercent(), 0.0001)
}
