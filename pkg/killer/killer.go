//go:build linux

// Package killer implements the two-signal termination protocol: acquire a
// PID-reuse-safe handle, re-check immunity, signal, then verify and reap.
package killer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/quietmem/oomsentinel/pkg/procscan"
)

// Level is the termination signal strength (spec §4.5).
type Level int

const (
	Graceful Level = iota
	Forceful
)

func (l Level) signal() unix.Signal {
	if l == Forceful {
		return unix.SIGKILL
	}
	return unix.SIGTERM
}

func (l Level) verifyWindow() time.Duration {
	if l == Forceful {
		return 500 * time.Millisecond
	}
	return time.Second
}

// Outcome is the result of one Enact call.
type Outcome int

const (
	Killed Outcome = iota
	// KilledReclaimFailed is Killed's counterpart when a Forceful signal was
	// delivered but synchronous reclaim could not be forced (no pidfd, or
	// the kernel lacks process_mrelease). Like Killed, it is reported after
	// the liveness poll whether or not the poll saw the process exit. The
	// caller should treat this
	// as a signal to lengthen the post-kill cooldown (spec §9: "where
	// synchronous reclaim is unavailable, lengthen the cooldown").
	KilledReclaimFailed
	AlreadyGone
	ProtectedRace
	Refused
	ErrorOutcome
)

func (o Outcome) String() string {
	switch o {
	case Killed:
		return "killed"
	case KilledReclaimFailed:
		return "killed_reclaim_failed"
	case AlreadyGone:
		return "already_gone"
	case ProtectedRace:
		return "protected_race"
	case Refused:
		return "refused"
	default:
		return "error"
	}
}

// Handle is a stable reference to a process that guards against PID reuse:
// once the underlying process has exited, every method reports that rather
// than acting on whatever process now holds the PID.
type Handle interface {
	PID() int
	// OOMScoreAdj re-reads the process's current oom_score_adj. ok is false
	// if the handle no longer refers to the original process.
	OOMScoreAdj() (value int, ok bool, err error)
	// Alive reports whether the original process is still running.
	Alive() (ok bool, err error)
	Signal(sig unix.Signal, processGroup bool) error
	// Reclaim forces the kernel to release the dying process's memory
	// immediately rather than waiting for its real parent to reap it.
	// Returns an error if the handle has no mechanism to do so.
	Reclaim() error
	Close() error
}

// AcquireHandle obtains a PID-reuse-safe handle, preferring a pidfd when
// the kernel supports it and falling back to start-time comparison
// otherwise (spec §4.5 step 1, DESIGN NOTES §9 emulation).
func AcquireHandle(procRoot string, pid int, startTicks uint64) (Handle, error) {
	if h, err := newPidfdHandle(pid); err == nil {
		return h, nil
	}
	return newPidHandle(procRoot, pid, startTicks), nil
}

// Killer enacts termination decisions against the candidate the ranker
// selected.
type Killer struct {
	ProcRoot         string
	KillProcessGroup bool
	DryRun           bool
	Logger           Logger

	// acquireHandle defaults to AcquireHandle; overridable in tests to
	// avoid depending on real pidfd/proc syscalls.
	acquireHandle func(procRoot string, pid int, startTicks uint64) (Handle, error)
}

func (k *Killer) handleFactory() func(procRoot string, pid int, startTicks uint64) (Handle, error) {
	if k.acquireHandle != nil {
		return k.acquireHandle
	}
	return AcquireHandle
}

// Logger is the minimal structured-logging surface the Killer needs;
// pkg/logging.Logger satisfies it.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
}

// Enact runs the four-step termination sequence against rec and returns the
// resulting Outcome (spec §4.5).
func (k *Killer) Enact(ctx context.Context, rec procscan.ProcessRecord, level Level) Outcome {
	correlationID := uuid.New().String()
	fields := map[string]any{
		"correlation_id": correlationID,
		"pid":            rec.PID,
		"name":           rec.Name,
		"level":          level,
	}

	handle, err := k.handleFactory()(k.ProcRoot, rec.PID, rec.StartTicks)
	if err != nil {
		k.Logger.Error("acquiring process handle", err, fields)
		return ErrorOutcome
	}
	defer handle.Close()

	adj, ok, err := handle.OOMScoreAdj()
	if err != nil {
		k.Logger.Error("pre-kill oom_score_adj re-check", err, fields)
		return ErrorOutcome
	}
	if !ok {
		k.Logger.Info("victim already gone before signal", fields)
		return AlreadyGone
	}
	if adj == -1000 {
		k.Logger.Warn("victim became immune between scan and kill", fields)
		return ProtectedRace
	}

	if k.DryRun {
		k.Logger.Info("dry-run: would signal victim", fields)
		return Refused
	}

	k.Logger.Info("signalling victim", fields)
	if err := handle.Signal(level.signal(), k.KillProcessGroup); err != nil {
		if err == unix.ESRCH {
			return AlreadyGone
		}
		k.Logger.Error("delivering signal", err, fields)
		return ErrorOutcome
	}

	outcome := k.verifyAndReap(ctx, handle, level, fields)
	fields["outcome"] = outcome.String()
	k.Logger.Info("kill sequence complete", fields)
	return outcome
}

// verifyAndReap attempts a synchronous memory reclaim on Forceful (so the
// next tick's sample reflects the freed pages immediately rather than
// racing the victim's real parent to reap it) and then polls liveness for
// the level's bounded window (spec §4.5 step 4).
func (k *Killer) verifyAndReap(ctx context.Context, handle Handle, level Level, fields map[string]any) Outcome {
	var reclaimErr error
	if level == Forceful {
		reclaimErr = handle.Reclaim()
		if reclaimErr != nil {
			k.Logger.Warn("synchronous reclaim unavailable, cooldown will be lengthened", map[string]any{
				"pid":   fields["pid"],
				"error": reclaimErr.Error(),
			})
		}
	}

	deadline := time.Now().Add(level.verifyWindow())
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		alive, err := handle.Alive()
		if err != nil || !alive {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return outcomeFor(level, reclaimErr)
		case <-ticker.C:
		}
	}

	return outcomeFor(level, reclaimErr)
}

// outcomeFor reports KilledReclaimFailed only for a Forceful kill whose
// synchronous reclaim attempt failed; Graceful kills never attempt reclaim
// and always report Killed.
func outcomeFor(level Level, reclaimErr error) Outcome {
	if level == Forceful && reclaimErr != nil {
		return KilledReclaimFailed
	}
	return Killed
}

func readOOMScoreAdj(procRoot string, pid int) (int, error) {
	b, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "oom_score_adj"))
	if err != nil {
		return 0, err
	}
	var v int
	if _, err := fmt.Sscanf(string(b), "%d", &v); err != nil {
		return 0, err
	}
	return v, nil
}
