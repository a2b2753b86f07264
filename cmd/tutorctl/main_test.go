package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "tutor.db"))
	t.Setenv("GENERATOR_PROVIDER", "none")
	t.Setenv("AUDIT_LOG_DIR", filepath.Join(dir, "audit"))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAskThenHistory(t *testing.T) {
	dir := setupEnv(t)

	history := filepath.Join(dir, "history.json")
	require.NoError(t, os.WriteFile(history, []byte(`[
	  {"role":"learner","content":"what is a loop","timestamp":"2026-03-01T09:00:00Z"},
	  {"role":"tutor","content":"a loop repeats code","timestamp":"2026-03-01T09:01:00Z"}
	]`), 0o600))

	out, err := run(t, "ask", "--learner", "learner-1", "-m", "this is boring, I already know loops",
		"--kind", "practice", "--subject", "programming", "--history", history)
	require.NoError(t, err)

	var ask struct {
		Source   string         `json:"source"`
		Response map[string]any `json:"response"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &ask))
	assert.Equal(t, "fallback", ask.Source)
	assert.Equal(t, "engaging_challenging", ask.Response["emotionalTone"])

	out, err = run(t, "history", "learner-1", "--events")
	require.NoError(t, err)

	var hist struct {
		Sessions    []map[string]any `json:"sessions"`
		LastContext []map[string]any `json:"lastContext"`
		Events      []map[string]any `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Len(t, hist.Sessions, 1)
	assert.Equal(t, "bored", hist.Sessions[0]["emotion"])
	require.Len(t, hist.LastContext, 2)
	assert.Equal(t, "a loop repeats code", hist.LastContext[1]["content"])
	assert.NotEmpty(t, hist.Events)
}

func TestAskRejectsInvalidKind(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "ask", "--learner", "learner-1", "-m", "hello", "--kind", "nap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sessionKind")
}

func TestPrune(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "prune", "--older-than", "1h")
	require.NoError(t, err)
	assert.Equal(t, "deleted 0 sessions\n", out)
}
