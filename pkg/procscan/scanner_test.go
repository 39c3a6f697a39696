package procscan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	pid         int
	name        string
	state       string
	ppid        int
	pgid        int
	numThreads  int
	startTicks  uint64
	uid         int
	rssKiB      uint64
	oomScore    int
	oomScoreAdj int
	cmdline     string // empty simulates a kernel thread
	omitStatus  bool
}

func writeFakeProc(t *testing.T, root string, p fakeProcess) {
	t.Helper()
	dir := filepath.Join(root, itoa(p.pid))
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte(p.cmdline), 0o644))

	pgid := p.pgid
	if pgid == 0 {
		pgid = p.pid
	}
	stat := itoa(p.pid) + " (" + p.name + ") " + p.state + " " + itoa(p.ppid) +
		" " + itoa(pgid) + " 100 -1 -1 4194304 10 0 0 0 5 2 0 0 20 0 " +
		itoa(p.numThreads) + " 0 " + itoa64(p.startTicks)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat+"\n"), 0o644))

	if !p.omitStatus {
		status := "Name:\t" + p.name + "\n" +
			"Uid:\t" + itoa(p.uid) + "\t" + itoa(p.uid) + "\t" + itoa(p.uid) + "\t" + itoa(p.uid) + "\n" +
			"VmRSS:\t" + itoa64(p.rssKiB) + " kB\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0o644))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "oom_score"), []byte(itoa(p.oomScore)+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oom_score_adj"), []byte(itoa(p.oomScoreAdj)+"\n"), 0o644))
}

func itoa(n int) string { return itoa64(uint64(n)) }

func itoa64(n uint64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestScan_ReadsOrdinaryProcess(t *testing.T) {
	root := t.TempDir()
	writeFakeProc(t, root, fakeProcess{
		pid: 500, name: "firefox", state: "S", ppid: 1, pgid: 500, numThreads: 4,
		startTicks: 123456, uid: 1000, rssKiB: 204800, oomScore: 300, oomScoreAdj: 0,
		cmdline: "firefox\x00",
	})

	recs, err := Scan(root, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 500, recs[0].PID)
	assert.Equal(t, "firefox", recs[0].Name)
	assert.Equal(t, "firefox", recs[0].Cmdline)
	assert.Equal(t, 1000, recs[0].UID)
	assert.Equal(t, uint64(204800), recs[0].RSSKiB)
	assert.Equal(t, 300, recs[0].OOMScore)
	assert.Equal(t, 500, recs[0].PGID)
	assert.Equal(t, StateSleeping, recs[0].State)
	assert.Equal(t, uint64(123456), recs[0].StartTicks)
	assert.False(t, recs[0].IsKernel)
}

func TestScan_SkipsKernelThread(t *testing.T) {
	root := t.TempDir()
	writeFakeProc(t, root, fakeProcess{pid: 2, name: "kthreadd", state: "S", cmdline: ""})

	recs, err := Scan(root, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestScan_SkipsZombie(t *testing.T) {
	root := t.TempDir()
	writeFakeProc(t, root, fakeProcess{pid: 700, name: "defunct", state: "Z", cmdline: "x\x00"})

	recs, err := Scan(root, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestScan_SkipsOptedOutByOOMScoreAdj(t *testing.T) {
	root := t.TempDir()
	writeFakeProc(t, root, fakeProcess{
		pid: 800, name: "sshd", state: "S", cmdline: "sshd\x00", oomScoreAdj: -1000,
	})

	recs, err := Scan(root, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestScan_SkipsPID1AndSelf(t *testing.T) {
	root := t.TempDir()
	writeFakeProc(t, root, fakeProcess{pid: 1, name: "init", state: "S", cmdline: "init\x00"})
	writeFakeProc(t, root, fakeProcess{pid: 999, name: "oomsentineld", state: "S", cmdline: "oomsentineld\x00"})

	recs, err := Scan(root, 999)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestScan_DropsVanishedPIDSilently(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1234"), 0o755))
	// cmdline deliberately missing: simulates the PID exiting between
	// readdir and the cmdline read.

	recs, err := Scan(root, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
