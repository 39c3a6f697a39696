package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quietmem/oomsentinel/pkg/config"
	"github.com/quietmem/oomsentinel/pkg/memstat"
)

func cfgWithThresholds(mem, swap config.ThresholdPair) *config.Config {
	return &config.Config{Memory: mem, Swap: swap}
}

func TestEvaluate_OkWhenNothingCrossed(t *testing.T) {
	sample := memstat.Sample{MemTotalKiB: 1000, MemAvailableKiB: 900}
	cfg := cfgWithThresholds(config.ThresholdPair{WarnPercent: 10, KillPercent: 5}, config.ThresholdPair{})
	assert.Equal(t, Ok, Evaluate(sample, cfg))
}

func TestEvaluate_WarnMemoryOnPercentCross(t *testing.T) {
	sample := memstat.Sample{MemTotalKiB: 1000, MemAvailableKiB: 80} // 8% free
	cfg := cfgWithThresholds(config.ThresholdPair{WarnPercent: 10, KillPercent: 5}, config.ThresholdPair{})
	assert.Equal(t, WarnMemory, Evaluate(sample, cfg))
}

func TestEvaluate_KillMemorySupersedesWarn(t *testing.T) {
	sample := memstat.Sample{MemTotalKiB: 1000, MemAvailableKiB: 30} // 3% free
	cfg := cfgWithThresholds(config.ThresholdPair{WarnPercent: 10, KillPercent: 5}, config.ThresholdPair{})
	assert.Equal(t, KillMemory, Evaluate(sample, cfg))
}

func TestEvaluate_AbsoluteKiBThresholdAlsoTriggers(t *testing.T) {
	sample := memstat.Sample{MemTotalKiB: 1_000_000, MemAvailableKiB: 400_000}
	cfg := cfgWithThresholds(config.ThresholdPair{WarnKiB: 500_000, KillKiB: 250_000}, config.ThresholdPair{})
	assert.Equal(t, WarnMemory, Evaluate(sample, cfg), "absolute floor must trigger even though percent is nowhere near")
}

func TestEvaluate_SwapDisabledWhenTotalZero(t *testing.T) {
	sample := memstat.Sample{MemTotalKiB: 1000, MemAvailableKiB: 900, SwapTotalKiB: 0, SwapFreeKiB: 0}
	cfg := cfgWithThresholds(config.ThresholdPair{}, config.ThresholdPair{WarnPercent: 90, KillPercent: 50})
	assert.Equal(t, Ok, Evaluate(sample, cfg), "a swapless host must never be read as 0%% free swap")
}

func TestEvaluate_KillSwapWinsOverWarnMemory(t *testing.T) {
	sample := memstat.Sample{
		MemTotalKiB: 1000, MemAvailableKiB: 80, // 8% free: warn
		SwapTotalKiB: 1000, SwapFreeKiB: 10, // 1% free: kill
	}
	cfg := cfgWithThresholds(
		config.ThresholdPair{WarnPercent: 10, KillPercent: 5},
		config.ThresholdPair{WarnPercent: 20, KillPercent: 5},
	)
	assert.Equal(t, KillSwap, Evaluate(sample, cfg))
}

func TestEvaluate_DisabledPairNeverTriggers(t *testing.T) {
	sample := memstat.Sample{MemTotalKiB: 1000, MemAvailableKiB: 1}
	cfg := cfgWithThresholds(config.ThresholdPair{}, config.ThresholdPair{})
	assert.Equal(t, Ok, Evaluate(sample, cfg))
}

func TestEvaluate_Idempotent(t *testing.T) {
	sample := memstat.Sample{MemTotalKiB: 1000, MemAvailableKiB: 80}
	cfg := cfgWithThresholds(config.ThresholdPair{WarnPercent: 10, KillPercent: 5}, config.ThresholdPair{})
	first := Evaluate(sample, cfg)
	second := Evaluate(sample, cfg)
	assert.Equal(t, first, second)
}
