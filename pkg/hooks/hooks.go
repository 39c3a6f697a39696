//go:build linux

// Package hooks runs user-supplied pre-kill/post-kill scripts with a
// sanitized, minimal environment and strict ownership checks.
package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/quietmem/oomsentinel/pkg/procscan"
)

// Timeout bounds every hook invocation (spec §4.6: "bounded by a short timeout, e.g. 5s").
const Timeout = 5 * time.Second

const maxEnvValueBytes = 256

// metacharacters are replaced with underscores before injection into the
// hook's environment (spec §4.6 sanitization rule).
const metacharacters = ";&|$`\\\"'\n"

// Runner invokes pre-kill and post-kill scripts.
type Runner struct {
	Logger Logger
}

// Logger is the minimal structured-logging surface the Runner needs.
type Logger interface {
	Warn(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
}

// Run executes scriptPath synchronously against rec's attributes, bounded
// by Timeout. A hook that fails validation is skipped with a warning; a
// hook that fails at runtime is logged and swallowed — hook failure is
// never fatal to the tick (spec §4.6).
func (r *Runner) Run(ctx context.Context, scriptPath string, rec procscan.ProcessRecord) {
	if scriptPath == "" {
		return
	}
	fields := map[string]any{"script": scriptPath, "pid": rec.PID}

	if err := verifyHookOwnership(scriptPath); err != nil {
		r.Logger.Warn("skipping hook: "+err.Error(), fields)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, scriptPath)
	cmd.Env = hookEnv(rec)

	if err := cmd.Run(); err != nil {
		r.Logger.Error("hook failed", err, fields)
	}
}

// verifyHookOwnership enforces spec §4.6: absolute path, exists, regular
// file (not a symlink), owned by root, not group- or world-writable.
func verifyHookOwnership(scriptPath string) error {
	if !filepath.IsAbs(scriptPath) {
		return fmt.Errorf("hook path %q is not absolute", scriptPath)
	}
	info, err := os.Lstat(scriptPath)
	if err != nil {
		return fmt.Errorf("hook path %q: %w", scriptPath, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("hook path %q is a symlink", scriptPath)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("hook path %q is not a regular file", scriptPath)
	}
	if err := checkOwnerAndPerms(scriptPath, info); err != nil {
		return err
	}
	return nil
}

// hookEnv builds the minimal, sanitized environment the spec allows: PATH
// plus the six victim attributes, never the daemon's own environment.
func hookEnv(rec procscan.ProcessRecord) []string {
	return []string{
		"PATH=/usr/bin:/bin",
		"OOM_VICTIM_PID=" + sanitize(strconv.Itoa(rec.PID)),
		"OOM_VICTIM_NAME=" + sanitize(rec.Name),
		"OOM_VICTIM_CMDLINE=" + sanitize(rec.Cmdline),
		"OOM_VICTIM_UID=" + sanitize(strconv.Itoa(rec.UID)),
		"OOM_VICTIM_RSS_KIB=" + sanitize(strconv.FormatUint(rec.RSSKiB, 10)),
		"OOM_VICTIM_OOM_SCORE=" + sanitize(strconv.Itoa(rec.OOMScore)),
	}
}

// sanitize truncates to maxEnvValueBytes and replaces shell metacharacters
// with underscores before a value is injected into the hook's environment
// (spec §4.6 mandatory sanitization).
func sanitize(v string) string {
	if len(v) > maxEnvValueBytes {
		v = v[:maxEnvValueBytes]
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(metacharacters, r) {
			return '_'
		}
		return r
	}, v)
}
