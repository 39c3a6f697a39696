// Package evaluator maps a memory sample to a severity verdict, the pure
// decision step between sampling and acting.
package evaluator

import (
	"github.com/quietmem/oomsentinel/pkg/config"
	"github.com/quietmem/oomsentinel/pkg/memstat"
)

// Verdict is the outcome severity for one tick. A Kill verdict dominates a
// Warn; memory and swap are evaluated independently and the caller acts on
// the maximum severity across the two (spec §3 "Verdict").
type Verdict int

const (
	Ok Verdict = iota
	WarnMemory
	WarnSwap
	KillMemory
	KillSwap
)

func (v Verdict) String() string {
	switch v {
	case Ok:
		return "ok"
	case WarnMemory:
		return "warn_memory"
	case WarnSwap:
		return "warn_swap"
	case KillMemory:
		return "kill_memory"
	case KillSwap:
		return "kill_swap"
	default:
		return "unknown"
	}
}

// Severity used to pick the maximum across memory and swap verdicts.
func (v Verdict) severity() int {
	switch v {
	case WarnMemory, WarnSwap:
		return 1
	case KillMemory, KillSwap:
		return 2
	default:
		return 0
	}
}

// Evaluate computes the memory and swap verdicts independently and returns
// whichever is more severe; a tie prefers memory (spec §4.2, arbitrary but
// deterministic tie-break since the spec does not order the two).
func Evaluate(sample memstat.Sample, cfg *config.Config) Verdict {
	mem := evaluateSubsystem(sample.MemFreePercent(), sample.MemAvailableKiB, cfg.Memory, WarnMemory, KillMemory)
	swap := evaluateSwap(sample, cfg.Swap)

	if swap.severity() > mem.severity() {
		return swap
	}
	return mem
}

// evaluateSubsystem crosses warn when either the percent threshold or the
// absolute KiB threshold is violated (logical OR across whichever
// representation the user actually configured); kill supersedes warn.
func evaluateSubsystem(freePercent float64, freeKiB uint64, pair config.ThresholdPair, warn, kill Verdict) Verdict {
	if crossesFreeThreshold(freePercent, freeKiB, pair.KillPercent, pair.KillKiB) {
		return kill
	}
	if crossesFreeThreshold(freePercent, freeKiB, pair.WarnPercent, pair.WarnKiB) {
		return warn
	}
	return Ok
}

// evaluateSwap is evaluateSubsystem plus the "swap total zero disables swap
// entirely" rule (spec §4.2, §4.3): a swapless host must never read as 0%
// free and therefore always crossing every threshold.
func evaluateSwap(sample memstat.Sample, pair config.ThresholdPair) Verdict {
	if sample.SwapTotalKiB == 0 {
		return Ok
	}
	return evaluateSubsystem(sample.SwapFreePercent(), sample.SwapFreeKiB, pair, WarnSwap, KillSwap)
}

// crossesFreeThreshold reports whether either representation of the
// threshold is violated; a representation left at zero (disabled) never
// contributes to the OR.
func crossesFreeThreshold(freePercent float64, freeKiB uint64, thresholdPercent float64, thresholdKiB uint64) bool {
	if thresholdPercent > 0 && freePercent <= thresholdPercent {
		return true
	}
	if thresholdKiB > 0 && freeKiB <= thresholdKiB {
		return true
	}
	return false
}
