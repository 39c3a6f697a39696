package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietmem/oomsentinel/pkg/config"
	"github.com/quietmem/oomsentinel/pkg/procscan"
)

func mustFilters(t *testing.T, ignore, avoid, prefer []string) config.Filters {
	t.Helper()
	f, err := config.NewFilters(ignore, avoid, prefer)
	require.NoError(t, err)
	return f
}

func TestSelect_PicksHighestScore(t *testing.T) {
	records := []procscan.ProcessRecord{
		{PID: 1, Name: "a", OOMScore: 100, RSSKiB: 50000},
		{PID: 2, Name: "b", OOMScore: 900, RSSKiB: 10000},
	}
	rec, ok := Select(records, config.Filters{}, config.SortByScore, false)
	require.True(t, ok)
	assert.Equal(t, 2, rec.PID)
}

func TestSelect_IgnoreDropsMatch(t *testing.T) {
	records := []procscan.ProcessRecord{
		{PID: 1, Name: "sshd", OOMScore: 900, RSSKiB: 50000},
		{PID: 2, Name: "firefox", OOMScore: 500, RSSKiB: 50000},
	}
	filters := mustFilters(t, []string{"^sshd$"}, nil, nil)
	rec, ok := Select(records, filters, config.SortByScore, false)
	require.True(t, ok)
	assert.Equal(t, 2, rec.PID)
}

func TestSelect_IgnoreRootUserDropsUIDZero(t *testing.T) {
	records := []procscan.ProcessRecord{
		{PID: 1, Name: "root-proc", UID: 0, OOMScore: 900, RSSKiB: 50000},
		{PID: 2, Name: "user-proc", UID: 1000, OOMScore: 100, RSSKiB: 50000},
	}
	rec, ok := Select(records, config.Filters{}, config.SortByScore, true)
	require.True(t, ok)
	assert.Equal(t, 2, rec.PID)
}

func TestSelect_PreferOutranksOrdinaryPeer(t *testing.T) {
	records := []procscan.ProcessRecord{
		{PID: 1, Name: "chromium-tab", OOMScore: 900, RSSKiB: 50000},
		{PID: 2, Name: "sentinel-test", OOMScore: 10, RSSKiB: 50000},
	}
	filters := mustFilters(t, nil, nil, []string{"^sentinel-test$"})
	rec, ok := Select(records, filters, config.SortByScore, false)
	require.True(t, ok)
	assert.Equal(t, 2, rec.PID, "prefer bias must outweigh a much higher ordinary score")
}

func TestSelect_AvoidSuppressesHighScore(t *testing.T) {
	records := []procscan.ProcessRecord{
		{PID: 1, Name: "database", OOMScore: 900, RSSKiB: 50000},
		{PID: 2, Name: "other", OOMScore: 500, RSSKiB: 50000},
	}
	filters := mustFilters(t, nil, []string{"^database$"}, nil)
	rec, ok := Select(records, filters, config.SortByScore, false)
	require.True(t, ok)
	assert.Equal(t, 2, rec.PID)
}

// TestRank_PreferAndAvoidSameProcess resolves the documented Open Question
// (same process matches both prefer and avoid): biases are additive and
// cancel, leaving the process at its unbiased base score.
func TestRank_PreferAndAvoidSameProcess(t *testing.T) {
	records := []procscan.ProcessRecord{
		{PID: 1, Name: "both", OOMScore: 400, RSSKiB: 50000},
		{PID: 2, Name: "plain", OOMScore: 400, RSSKiB: 50000},
	}
	filters := mustFilters(t, nil, []string{"^both$"}, []string{"^both$"})

	recBoth, ok := Select([]procscan.ProcessRecord{records[0]}, filters, config.SortByScore, false)
	require.True(t, ok)
	assert.Equal(t, float64(400), adjustedScore(recBoth, filters, config.SortByScore))
}

func TestSelect_TieBrokenByRSSThenPID(t *testing.T) {
	records := []procscan.ProcessRecord{
		{PID: 10, Name: "a", OOMScore: 500, RSSKiB: 1000},
		{PID: 20, Name: "b", OOMScore: 500, RSSKiB: 2000},
	}
	rec, ok := Select(records, config.Filters{}, config.SortByScore, false)
	require.True(t, ok)
	assert.Equal(t, 20, rec.PID, "higher RSS wins an exact score tie")
}

func TestSelect_BelowSanityFloorReturnsNone(t *testing.T) {
	records := []procscan.ProcessRecord{
		{PID: 1, Name: "tiny", RSSKiB: 512},
	}
	_, ok := Select(records, config.Filters{}, config.SortByRSS, false)
	assert.False(t, ok, "RSS at or below the 1 MiB floor must not be selected")
}

func TestSelect_EmptyInputReturnsNone(t *testing.T) {
	_, ok := Select(nil, config.Filters{}, config.SortByScore, false)
	assert.False(t, ok)
}
