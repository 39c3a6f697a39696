// Package procscan enumerates killable candidate processes from /proc,
// reading each one's name, cmdline, owning uid, RSS, kernel OOM score, and
// start time into a ProcessRecord.
package procscan

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tklauser/go-sysconf"
)

var clockTicksPerSecond = 100.0

func init() {
	if sc, err := sysconf.Sysconf(sysconf.SC_CLK_TCK); err == nil && sc > 0 {
		clockTicksPerSecond = float64(sc)
	}
}

// ClockTicksPerSecond is the conversion factor from the clock ticks of
// field 22 of /proc/[pid]/stat to seconds. The PID-reuse check in
// pkg/killer compares raw tick counts and does not call it.
func ClockTicksPerSecond() float64 { return clockTicksPerSecond }

// ProcessState mirrors the first character of field 3 of /proc/[pid]/stat,
// collapsed to the states the ranker and killer care about.
type ProcessState int

const (
	StateRunning ProcessState = iota
	StateSleeping
	StateZombie
	StateOther
)

// ProcessRecord is a process observed in a single scan pass.
type ProcessRecord struct {
	PID         int
	Name        string // short command name, from /proc/[pid]/status "Name:"
	Cmdline     string // space-joined argv; empty for kernel threads
	UID         int
	RSSKiB      uint64
	OOMScore    int
	OOMScoreAdj int
	State       ProcessState
	IsKernel    bool
	PGID        int
	StartTicks  uint64 // field 22 of /proc/[pid]/stat
}

// Scan walks procRoot's numeric entries and returns one ProcessRecord per
// process that survives the built-in skip rules: kernel threads (empty
// cmdline), PID 1, zombies, the scanning process itself, and anything with
// oom_score_adj pinned to -1000. A PID that vanishes mid-read is silently
// dropped rather than surfaced as an error, since disappearing between
// readdir and read is the expected case under memory pressure.
func Scan(procRoot string, selfPID int) ([]ProcessRecord, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", procRoot, err)
	}

	records := make([]ProcessRecord, 0, len(entries))
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		if pid == 1 || pid == selfPID {
			continue
		}
		rec, ok, err := readRecord(procRoot, pid)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func readRecord(procRoot string, pid int) (ProcessRecord, bool, error) {
	dir := filepath.Join(procRoot, strconv.Itoa(pid))

	cmdlineRaw, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil {
		return ProcessRecord{}, false, nil // vanished between readdir and read
	}
	if len(cmdlineRaw) == 0 {
		return ProcessRecord{}, false, nil // kernel thread: never a kill candidate
	}
	cmdline := strings.TrimRight(strings.ReplaceAll(string(cmdlineRaw), "\x00", " "), " ")

	statRaw, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return ProcessRecord{}, false, nil
	}
	stat, err := parseStat(string(statRaw))
	if err != nil {
		return ProcessRecord{}, false, nil
	}
	if stat.state == StateZombie {
		return ProcessRecord{}, false, nil // nothing left to signal
	}

	name, uid, err := readStatus(dir)
	if err != nil {
		return ProcessRecord{}, false, nil
	}

	rssKiB, err := readRSSKiB(dir)
	if err != nil {
		return ProcessRecord{}, false, nil
	}

	oomScore, err := readIntFile(filepath.Join(dir, "oom_score"))
	if err != nil {
		return ProcessRecord{}, false, nil
	}
	oomScoreAdj, err := readIntFile(filepath.Join(dir, "oom_score_adj"))
	if err != nil {
		return ProcessRecord{}, false, nil
	}
	if oomScoreAdj == -1000 {
		return ProcessRecord{}, false, nil // opted out by the kernel OOM killer itself
	}

	return ProcessRecord{
		PID:         pid,
		Name:        name,
		Cmdline:     cmdline,
		UID:         uid,
		RSSKiB:      rssKiB,
		OOMScore:    oomScore,
		OOMScoreAdj: oomScoreAdj,
		State:       stat.state,
		IsKernel:    false,
		PGID:        stat.pgid,
		StartTicks:  stat.startTicks,
	}, true, nil
}

type statFields struct {
	state      ProcessState
	pgid       int
	startTicks uint64
}

// parseStat extracts state, pgrp (field 5), and starttime (field 22) from a
// raw /proc/[pid]/stat line. comm is parenthesized and may itself contain
// spaces or parens, so the split point is the *last* ")" rather than the
// first.
func parseStat(line string) (statFields, error) {
	open := strings.IndexByte(line, '(')
	closeParen := strings.LastIndexByte(line, ')')
	if open < 0 || closeParen < 0 || closeParen <= open {
		return statFields{}, fmt.Errorf("malformed stat line")
	}

	fields := strings.Fields(line[closeParen+1:])
	// fields[0] is state (overall field 3); everything else below is
	// re-indexed relative to this slice, shifted by -3 from the
	// proc_pid_stat(5) field numbers.
	if len(fields) < 20 {
		return statFields{}, fmt.Errorf("stat line too short")
	}
	pgid, err := strconv.Atoi(fields[2])
	if err != nil {
		return statFields{}, err
	}
	startTicks, err := strconv.ParseUint(fields[19], 10, 64)
	if err != nil {
		return statFields{}, err
	}
	return statFields{state: classifyState(fields[0]), pgid: pgid, startTicks: startTicks}, nil
}

func classifyState(raw string) ProcessState {
	if raw == "" {
		return StateOther
	}
	switch raw[0] {
	case 'R':
		return StateRunning
	case 'S', 'D', 'I':
		return StateSleeping
	case 'Z':
		return StateZombie
	default:
		return StateOther
	}
}

// readStatus reads the short command name and real uid from
// /proc/[pid]/status in a single pass.
func readStatus(dir string) (name string, uid int, err error) {
	f, err := os.Open(filepath.Join(dir, "status"))
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	haveName, haveUID := false, false
	sc := bufio.NewScanner(f)
	for sc.Scan() && !(haveName && haveUID) {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "Name:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			haveName = true
		case strings.HasPrefix(line, "Uid:"):
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return "", 0, fmt.Errorf("malformed Uid line")
			}
			uid, err = strconv.Atoi(fields[1]) // real uid
			if err != nil {
				return "", 0, err
			}
			haveUID = true
		}
	}
	if err := sc.Err(); err != nil {
		return "", 0, err
	}
	if !haveName || !haveUID {
		return "", 0, fmt.Errorf("status missing Name or Uid")
	}
	return name, uid, nil
}

// readRSSKiB prefers the status file's VmRSS summary line; it is present
// for every process status exposes and needs no page-size arithmetic.
func readRSSKiB(dir string) (uint64, error) {
	f, err := os.Open(filepath.Join(dir, "status"))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed VmRSS line")
		}
		return strconv.ParseUint(fields[1], 10, 64)
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, nil // process has no resident pages left (e.g. fully swapped)
}

func readIntFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}
