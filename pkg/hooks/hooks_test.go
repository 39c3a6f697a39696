//go:build linux

package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietmem/oomsentinel/pkg/procscan"
)

type capturingLogger struct {
	warnings []string
	errors   []string
}

func (l *capturingLogger) Warn(msg string, _ map[string]any)         { l.warnings = append(l.warnings, msg) }
func (l *capturingLogger) Error(msg string, _ error, _ map[string]any) { l.errors = append(l.errors, msg) }

func TestRun_SkipsRelativePath(t *testing.T) {
	logger := &capturingLogger{}
	r := &Runner{Logger: logger}
	r.Run(context.Background(), "relative/script.sh", procscan.ProcessRecord{})
	require.Len(t, logger.warnings, 1)
	assert.Contains(t, logger.warnings[0], "not absolute")
}

func TestRun_SkipsWorldWritableScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "hook.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o777))
	require.NoError(t, os.Chmod(script, 0o777)) // WriteFile's mode is reduced by the umask

	logger := &capturingLogger{}
	r := &Runner{Logger: logger}
	r.Run(context.Background(), script, procscan.ProcessRecord{})
	require.Len(t, logger.warnings, 1)
	assert.Contains(t, logger.warnings[0], "writable")
}

func TestRun_SkipsNonRootOwnedScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "hook.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o700))

	logger := &capturingLogger{}
	r := &Runner{Logger: logger}
	r.Run(context.Background(), script, procscan.ProcessRecord{})
	require.Len(t, logger.warnings, 1)
	assert.Contains(t, logger.warnings[0], "not owned by root")
}

func TestValidateOwnerAndPerms_RejectsWritableRegardlessOfOwner(t *testing.T) {
	err := validateOwnerAndPerms("/hook.sh", 0, 0o757)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writable")
}

func TestValidateOwnerAndPerms_AcceptsRootOwnedOwnerOnlyWritable(t *testing.T) {
	err := validateOwnerAndPerms("/hook.sh", 0, 0o700)
	assert.NoError(t, err)
}

func TestRun_SkipsSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.sh")
	require.NoError(t, os.WriteFile(real, []byte("#!/bin/sh\nexit 0\n"), 0o700))
	link := filepath.Join(dir, "link.sh")
	require.NoError(t, os.Symlink(real, link))

	logger := &capturingLogger{}
	r := &Runner{Logger: logger}
	r.Run(context.Background(), link, procscan.ProcessRecord{})
	require.Len(t, logger.warnings, 1)
	assert.Contains(t, logger.warnings[0], "symlink")
}

func TestRun_EmptyPathIsNoop(t *testing.T) {
	logger := &capturingLogger{}
	r := &Runner{Logger: logger}
	r.Run(context.Background(), "", procscan.ProcessRecord{})
	assert.Empty(t, logger.warnings)
	assert.Empty(t, logger.errors)
}

func TestSanitize_TruncatesAndReplacesMetacharacters(t *testing.T) {
	in := "evil; rm -rf / `whoami` $(id) \"quoted\" 'single'\nnewline"
	out := sanitize(in)
	for _, ch := range metacharacters {
		assert.NotContains(t, out, string(ch))
	}

	long := strings.Repeat("a", maxEnvValueBytes+50)
	assert.Len(t, sanitize(long), maxEnvValueBytes)
}

func TestHookEnv_NeverInheritsDaemonEnvironment(t *testing.T) {
	t.Setenv("OOM_SENTINEL_SECRET", "do-not-leak")
	env := hookEnv(procscan.ProcessRecord{PID: 123, Name: "victim"})
	for _, kv := range env {
		assert.NotContains(t, kv, "do-not-leak")
	}
	joined := strings.Join(env, " ")
	assert.Contains(t, joined, "OOM_VICTIM_PID=123")
	assert.Contains(t, joined, "OOM_VICTIM_NAME=victim")
}
