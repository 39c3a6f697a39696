//go:build linux

// Package daemon composes the Sampler, Evaluator, Scanner, Ranker, Killer,
// Hook Runner, Notifier, and Telemetry collaborators into the single-
// goroutine supervisor loop that is the daemon's whole reason to exist.
package daemon

import (
	"context"
	"os"
	"time"

	"github.com/quietmem/oomsentinel/pkg/config"
	"github.com/quietmem/oomsentinel/pkg/evaluator"
	"github.com/quietmem/oomsentinel/pkg/hooks"
	"github.com/quietmem/oomsentinel/pkg/killer"
	"github.com/quietmem/oomsentinel/pkg/memstat"
	"github.com/quietmem/oomsentinel/pkg/notify"
	"github.com/quietmem/oomsentinel/pkg/procscan"
	"github.com/quietmem/oomsentinel/pkg/rank"
	"github.com/quietmem/oomsentinel/pkg/telemetry"
)

// tickState names the step of one loop iteration currently executing, the
// same "state machine you can read off a log stream" idiom the teacher's
// Orchestrator used for a whole test run, here scaled down to one tick.
type tickState int

const (
	stateSample tickState = iota
	stateEvaluate
	stateScan
	stateSelect
	statePreHook
	stateSignal
	stateVerifyReap
	statePostHook
	stateNotify
	stateCooldown
)

func (s tickState) String() string {
	switch s {
	case stateSample:
		return "SAMPLE"
	case stateEvaluate:
		return "EVALUATE"
	case stateScan:
		return "SCAN"
	case stateSelect:
		return "SELECT"
	case statePreHook:
		return "PRE_HOOK"
	case stateSignal:
		return "SIGNAL"
	case stateVerifyReap:
		return "VERIFY_REAP"
	case statePostHook:
		return "POST_HOOK"
	case stateNotify:
		return "NOTIFY"
	case stateCooldown:
		return "COOLDOWN"
	default:
		return "UNKNOWN"
	}
}

// Cooldown durations after an action (spec §4.8/§5: "≥10s after a Forceful
// kill, shorter after a Graceful") — the central guard against kill storms
// while the kernel is still reclaiming the previous victim's pages.
const (
	cooldownForceful = 10 * time.Second
	cooldownGraceful = 3 * time.Second

	// cooldownForcefulExtended applies instead of cooldownForceful whenever
	// a Forceful kill's synchronous reclaim failed (killer.KilledReclaimFailed):
	// without a forced reclaim the kernel frees the victim's pages on its own
	// schedule, so the next sample needs longer to reflect reality (spec §9:
	// "where synchronous reclaim is unavailable, lengthen the cooldown").
	cooldownForcefulExtended = 30 * time.Second

	adaptiveFloor   = 100 * time.Millisecond
	adaptiveCeiling = 1000 * time.Millisecond
)

// Logger is the subset of pkg/logging.Logger the supervisor loop needs; any
// value satisfying it also satisfies killer.Logger, hooks.Logger, and
// notify.Logger, so a single concrete logger wires through every collaborator.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
}

// Supervisor owns the loop and every collaborator it drives. ProcRoot and
// SelfPID exist so tests can point the whole pipeline at a fabricated
// /proc tree instead of the real one.
type Supervisor struct {
	Cfg    *config.Config
	Logger Logger
	Tel    *telemetry.Telemetry

	Killer *killer.Killer
	Hooks  *hooks.Runner
	Notify *notify.Notifier

	ProcRoot string
	SelfPID  int

	// sample/scan are injection seams for tests; both default to the real
	// /proc readers in New.
	sample func(procRoot string) (memstat.Sample, error)
	scan   func(procRoot string, selfPID int) ([]procscan.ProcessRecord, error)

	// sleep is the suspension-point seam so tests never actually block.
	sleep func(ctx context.Context, d time.Duration)

	lastReportAt time.Time
}

// New builds a Supervisor wired to the real /proc and real syscalls; tests
// call New and then replace ProcRoot, SelfPID, and the unexported seams.
func New(cfg *config.Config, logger Logger, tel *telemetry.Telemetry, k *killer.Killer, h *hooks.Runner, n *notify.Notifier) *Supervisor {
	return &Supervisor{
		Cfg:      cfg,
		Logger:   logger,
		Tel:      tel,
		Killer:   k,
		Hooks:    h,
		Notify:   n,
		ProcRoot: "/proc",
		SelfPID:  -1,
		sample:   memstat.Take,
		scan:     procscan.Scan,
		sleep:    realSleep,
	}
}

func realSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run executes ticks until ctx is cancelled. Shutdown lets the current
// tick's bounded steps finish — in particular an in-flight Forceful kill's
// verify/reap step is never aborted (spec §5 "Cancellation & shutdown").
func (s *Supervisor) Run(ctx context.Context) {
	if s.SelfPID < 0 {
		s.SelfPID = os.Getpid()
	}
	for {
		if ctx.Err() != nil {
			return
		}
		s.tick(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Supervisor) transition(st tickState) {
	s.Logger.Debug("tick state", map[string]any{"state": st.String()})
}

func (s *Supervisor) tick(ctx context.Context) {
	s.transition(stateSample)
	sample, err := s.sample(s.ProcRoot)
	if err != nil {
		s.Logger.Error("sampling memory failed", err, nil)
		s.sleep(ctx, adaptiveCeiling)
		return
	}

	s.transition(stateEvaluate)
	verdict := evaluator.Evaluate(sample, s.Cfg)
	s.Tel.RecordTick(verdict, sample.MemFreePercent(), sample.SwapFreePercent())
	s.maybeReport(sample, verdict)

	// The action steps run on a context that shutdown does not cancel: each
	// is bounded by its own timeout, and a started kill sequence finishes.
	actCtx := context.WithoutCancel(ctx)
	switch {
	case verdict == evaluator.KillMemory || verdict == evaluator.KillSwap:
		outcome, acted := s.act(actCtx, verdict)
		s.sleepCooldown(ctx, killer.Forceful, outcome, acted)
	case verdict == evaluator.WarnMemory || verdict == evaluator.WarnSwap:
		outcome, acted := s.act(actCtx, verdict)
		s.sleepCooldown(ctx, killer.Graceful, outcome, acted)
	default:
		s.sleep(ctx, adaptiveInterval(sample, s.Cfg))
	}
}

// levelForVerdict maps a subsystem verdict onto the signal strength the
// Killer should use; the verdict itself (not just the level) travels on to
// the Notifier so a swap event is never reported as a memory event.
func levelForVerdict(verdict evaluator.Verdict) killer.Level {
	if verdict == evaluator.KillMemory || verdict == evaluator.KillSwap {
		return killer.Forceful
	}
	return killer.Graceful
}

// act runs the scan → select → pre-hook → signal → verify/reap → post-hook
// → notify sequence against verdict. It reports the Killer's Outcome and
// whether a victim was actually acted on, so the caller can size the
// cooldown; it is a no-op beyond logging if no eligible victim is found.
func (s *Supervisor) act(ctx context.Context, verdict evaluator.Verdict) (killer.Outcome, bool) {
	level := levelForVerdict(verdict)

	s.transition(stateScan)
	records, err := s.scan(s.ProcRoot, s.SelfPID)
	if err != nil {
		s.Logger.Error("process scan failed", err, nil)
		return killer.ErrorOutcome, false
	}

	s.transition(stateSelect)
	victim, ok := rank.Select(records, s.Cfg.Filters, s.Cfg.SortMode, s.Cfg.IgnoreRootUser)
	if !ok {
		s.Logger.Warn("no eligible victim found for verdict", map[string]any{"level": level})
		return killer.ErrorOutcome, false
	}

	s.transition(statePreHook)
	s.Hooks.Run(ctx, s.Cfg.PreKillScript, victim)

	s.transition(stateSignal)
	outcome := s.Killer.Enact(ctx, victim, level)
	s.transition(stateVerifyReap)
	s.Tel.RecordOutcome(outcome)

	s.transition(statePostHook)
	s.Hooks.Run(ctx, s.Cfg.PostKillScript, victim)

	s.transition(stateNotify)
	if s.Cfg.Notify {
		s.Notify.Notify(ctx, notify.Event{Victim: victim, Verdict: verdict, Outcome: outcome})
	}
	return outcome, true
}

// sleepCooldown sizes the post-action sleep from the signal level and the
// kill outcome: a Forceful kill whose synchronous reclaim failed gets the
// extended cooldown so the next sample has time to reflect the kernel's own
// (slower) teardown instead of mid-teardown pages still counting as used.
func (s *Supervisor) sleepCooldown(ctx context.Context, level killer.Level, outcome killer.Outcome, acted bool) {
	s.transition(stateCooldown)
	if level != killer.Forceful {
		s.sleep(ctx, cooldownGraceful)
		return
	}
	if acted && outcome == killer.KilledReclaimFailed {
		s.sleep(ctx, cooldownForcefulExtended)
		return
	}
	s.sleep(ctx, cooldownForceful)
}

// maybeReport logs the periodic status line (spec §6 "report-seconds");
// ReportSeconds == 0 disables it.
func (s *Supervisor) maybeReport(sample memstat.Sample, verdict evaluator.Verdict) {
	if s.Cfg.ReportSeconds <= 0 {
		return
	}
	now := time.Now()
	if !s.lastReportAt.IsZero() && now.Sub(s.lastReportAt) < time.Duration(s.Cfg.ReportSeconds)*time.Second {
		return
	}
	s.lastReportAt = now

	snap := s.Tel.Snapshot()
	s.Logger.Info("status", map[string]any{
		"mem_free_percent":  sample.MemFreePercent(),
		"swap_free_percent": sample.SwapFreePercent(),
		"verdict":           verdict.String(),
		"ticks":             snap.Ticks,
		"protected_races":   snap.ProtectedRaces,
		"kills_by_outcome":  snap.KillsByOutcome,
	})
}

// adaptiveInterval is monotonic in headroom: near a threshold it sleeps at
// the floor, with large headroom it sleeps at the ceiling (spec §4.8).
// Headroom is measured as the smaller of the memory and swap free
// fractions relative to their own warn thresholds, so a host with swap
// disabled is judged purely on memory.
func adaptiveInterval(sample memstat.Sample, cfg *config.Config) time.Duration {
	headroom := subsystemHeadroom(sample.MemFreePercent(), cfg.Memory)
	if sample.SwapTotalKiB > 0 && (cfg.Swap.WarnPercent > 0 || cfg.Swap.WarnKiB > 0) {
		if swapHeadroom := subsystemHeadroom(sample.SwapFreePercent(), cfg.Swap); swapHeadroom < headroom {
			headroom = swapHeadroom
		}
	}

	span := adaptiveCeiling - adaptiveFloor
	return adaptiveFloor + time.Duration(float64(span)*headroom)
}

// subsystemHeadroom returns 0 when free percent is at or below the warn
// threshold and approaches 1 as free percent rises well above it. Only the
// percent warn threshold is considered: a pair with WarnPercent == 0
// (disabled, or configured in KiB only) reports full headroom.
func subsystemHeadroom(freePercent float64, pair config.ThresholdPair) float64 {
	if pair.WarnPercent <= 0 {
		return 1
	}
	if freePercent <= pair.WarnPercent {
		return 0
	}
	// Treat twice the warn threshold as "fully relaxed"; clamp above that.
	span := pair.WarnPercent
	headroom := (freePercent - pair.WarnPercent) / span
	if headroom > 1 {
		return 1
	}
	return headroom
}
