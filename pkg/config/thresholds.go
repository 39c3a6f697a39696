package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ThresholdPair is the warn/kill pair for one subsystem (memory or swap),
// expressed as a percentage of total and/or an absolute KiB floor. Either
// representation may be left at zero to disable it; if both percent and
// KiB representations are zero the subsystem never triggers on its own.
type ThresholdPair struct {
	WarnPercent float64
	KillPercent float64
	WarnKiB     uint64
	KillKiB     uint64
}

// percentSet reports whether a percent-based pair was configured.
func (t ThresholdPair) percentSet() bool {
	return t.WarnPercent != 0 || t.KillPercent != 0
}

// kibSet reports whether an absolute-KiB pair was configured.
func (t ThresholdPair) kibSet() bool {
	return t.WarnKiB != 0 || t.KillKiB != 0
}

// validate enforces kill <= warn and the warn-only default (kill = warn/2)
// for whichever representation was actually supplied.
func (t *ThresholdPair) validate(label string) error {
	if t.percentSet() {
		if t.KillPercent == 0 {
			t.KillPercent = t.WarnPercent / 2
		}
		if t.WarnPercent <= 0 || t.KillPercent <= 0 {
			return fmt.Errorf("%s percent thresholds must be > 0", label)
		}
		if t.KillPercent > t.WarnPercent {
			return fmt.Errorf("%s kill percent (%.2f) must be <= warn percent (%.2f)", label, t.KillPercent, t.WarnPercent)
		}
	}
	if t.kibSet() {
		if t.KillKiB == 0 {
			t.KillKiB = t.WarnKiB / 2
		}
		if t.WarnKiB == 0 || t.KillKiB == 0 {
			return fmt.Errorf("%s KiB thresholds must be > 0", label)
		}
		if t.KillKiB > t.WarnKiB {
			return fmt.Errorf("%s kill KiB (%d) must be <= warn KiB (%d)", label, t.KillKiB, t.WarnKiB)
		}
	}
	return nil
}

// percentPairFlag is a pflag.Value that parses "warn,kill" or "warn" into
// the Percent fields of a ThresholdPair.
type percentPairFlag struct{ pair *ThresholdPair }

func (f percentPairFlag) String() string {
	if f.pair == nil || !f.pair.percentSet() {
		return ""
	}
	return formatPair(f.pair.WarnPercent, f.pair.KillPercent)
}

func (f percentPairFlag) Set(s string) error {
	warn, kill, err := parsePairString(s)
	if err != nil {
		return err
	}
	f.pair.WarnPercent = warn
	f.pair.KillPercent = kill
	return nil
}

func (f percentPairFlag) Type() string { return "percent-pair" }

// kibPairFlag is a pflag.Value that parses "warn,kill" or "warn" into the
// KiB fields of a ThresholdPair.
type kibPairFlag struct{ pair *ThresholdPair }

func (f kibPairFlag) String() string {
	if f.pair == nil || !f.pair.kibSet() {
		return ""
	}
	return formatPair(float64(f.pair.WarnKiB), float64(f.pair.KillKiB))
}

func (f kibPairFlag) Set(s string) error {
	warn, kill, err := parsePairString(s)
	if err != nil {
		return err
	}
	f.pair.WarnKiB = uint64(warn)
	f.pair.KillKiB = uint64(kill)
	return nil
}

func (f kibPairFlag) Type() string { return "kib-pair" }

// parsePairString parses "W,K" or "W" (kill defaults to 0, meaning
// "derive from warn/2" once validated) into two float64 values.
func parsePairString(s string) (warn, kill float64, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ",", 2)
	warn, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid threshold value %q: %w", parts[0], err)
	}
	if len(parts) == 1 {
		return warn, 0, nil
	}
	kill, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid threshold value %q: %w", parts[1], err)
	}
	return warn, kill, nil
}

func formatPair(warn, kill float64) string {
	return fmt.Sprintf("%s,%s", trimFloat(warn), trimFloat(kill))
}

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return s
}
