package config

import (
	"fmt"
	"regexp"
	"regexp/syntax"
)

// maxPatternLen bounds a single regex source to resist pathological input
// (spec §3, §9 "regex denial-of-service").
const maxPatternLen = 256

// maxProgramSize bounds the compiled automaton size as a second line of
// defense beyond Go's RE2 (already linear-time, unlike backtracking
// engines) against memory-exhausting patterns.
const maxProgramSize = 10000

// Filters holds the compiled ignore/avoid/prefer regex lists used by the
// ranker (spec §4.4). The three lists are immutable once built.
type Filters struct {
	Ignore []*regexp.Regexp
	Avoid  []*regexp.Regexp
	Prefer []*regexp.Regexp
}

// NewFilters compiles the three pattern lists, collecting every error
// instead of stopping at the first one, in the validator-style of
// accumulating all problems before failing startup.
func NewFilters(ignore, avoid, prefer []string) (Filters, error) {
	var errs []error
	compile := func(label string, sources []string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, 0, len(sources))
		for _, src := range sources {
			re, err := compileBounded(src)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s pattern %q: %w", label, src, err))
				continue
			}
			out = append(out, re)
		}
		return out
	}

	f := Filters{
		Ignore: compile("ignore", ignore),
		Avoid:  compile("avoid", avoid),
		Prefer: compile("prefer", prefer),
	}

	if len(errs) > 0 {
		return Filters{}, joinErrors(errs)
	}
	return f, nil
}

func compileBounded(src string) (*regexp.Regexp, error) {
	if len(src) > maxPatternLen {
		return nil, fmt.Errorf("pattern exceeds %d bytes", maxPatternLen)
	}
	parsed, err := syntax.Parse(src, syntax.Perl)
	if err != nil {
		return nil, err
	}
	prog, err := syntax.Compile(parsed)
	if err != nil {
		return nil, err
	}
	if len(prog.Inst) > maxProgramSize {
		return nil, fmt.Errorf("compiled pattern too large (%d instructions)", len(prog.Inst))
	}
	return regexp.Compile(src)
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msg := fmt.Sprintf("%d configuration errors:", len(errs))
	for _, e := range errs {
		msg += "\n  - " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

// MatchAny reports whether name matches any pattern in the list.
func MatchAny(list []*regexp.Regexp, name string) bool {
	for _, re := range list {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
