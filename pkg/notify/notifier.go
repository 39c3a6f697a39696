//go:build linux

// Package notify delivers best-effort desktop notifications describing a
// kill event. Delivery failure must never block or delay the termination
// path, so every error here is logged and swallowed.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/quietmem/oomsentinel/pkg/evaluator"
	"github.com/quietmem/oomsentinel/pkg/killer"
	"github.com/quietmem/oomsentinel/pkg/procscan"
)

// Timeout bounds the notify-send invocation, identical in shape to the
// hook runner's bound (spec §4.7).
const Timeout = 5 * time.Second

// Logger is the minimal structured-logging surface the Notifier needs.
type Logger interface {
	Debug(msg string, fields map[string]any)
}

// Notifier is the collaborator the spec deliberately scopes delivery out
// of; this implementation targets the FreeDesktop Notifications CLI,
// present on every desktop environment the daemon runs alongside.
type Notifier struct {
	Enabled bool
	Logger  Logger

	// Run defaults to exec.CommandContext's Run; overridable by tests,
	// including tests in other packages driving a Notifier end-to-end.
	Run func(ctx context.Context, name string, args ...string) error
}

func (n *Notifier) runner() func(context.Context, string, ...string) error {
	if n.Run != nil {
		return n.Run
	}
	return func(ctx context.Context, name string, args ...string) error {
		return exec.CommandContext(ctx, name, args...).Run()
	}
}

// Event describes the kill outcome to announce.
type Event struct {
	Victim  procscan.ProcessRecord
	Verdict evaluator.Verdict
	Outcome killer.Outcome
}

// Notify is best-effort: if notify-send is missing, there is no session
// bus, or the call times out, the error is logged at debug and dropped.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	if !n.Enabled {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	summary := "oomsentineld"
	body := fmt.Sprintf("%s: %s (pid %d, %s) -> %s", ev.Verdict, ev.Victim.Name, ev.Victim.PID, humanKiB(ev.Victim.RSSKiB), ev.Outcome)

	if err := n.runner()(ctx, "notify-send", "--urgency=critical", summary, body); err != nil {
		n.Logger.Debug("notify-send failed", map[string]any{"error": err.Error()})
	}
}

func humanKiB(kib uint64) string {
	if kib >= 1024*1024 {
		return fmt.Sprintf("%.1f GiB", float64(kib)/(1024*1024))
	}
	if kib >= 1024 {
		return fmt.Sprintf("%.1f MiB", float64(kib)/1024)
	}
	return fmt.Sprintf("%d KiB", kib)
}
