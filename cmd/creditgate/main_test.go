package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/creditgate/pkg/cli"
)

// run executes the command tree with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes a sqlite-backed config so state survives between
// command invocations.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "creditgate.yaml")
	data := "credits:\n  default_limit: 20\n" +
		"storage:\n  backend: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "credits.db") + "\n" +
		extra
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestFeaturesCommand(t *testing.T) {
	out, err := run(t, "features")
	if err != nil {
		t.Fatalf("features failed: %v", err)
	}
	for _, want := range []string{"FEATURE", "CACHE_TTL", "meeting_summary", "weekly_report", "24h0m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEstimateCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		want     string
		wantCode int
	}{
		{"positional", []string{"estimate", "meeting_summary"}, "Meeting summary: 10 credits (cached for 24h)", cli.ExitOK},
		{"flag", []string{"estimate", "--feature", "chat_message"}, "AI chat message: 1 credit", cli.ExitOK},
		{"json", []string{"estimate", "weekly_report", "-o", "json"}, `"credits": 15`, cli.ExitOK},
		{"unknown feature", []string{"estimate", "image_generation"}, "", cli.ExitUsage},
		{"missing feature", []string{"estimate"}, "", cli.ExitConfig},
		{"bad output", []string{"estimate", "chat_message", "-o", "xml"}, "", cli.ExitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if code := cli.ExitCode(err); code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (err: %v)", code, tt.wantCode, err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "validate", "--config", writeConfig(t, ""))
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("unexpected output: %s", out)
	}

	_, err = run(t, "validate", "--config", writeConfig(t, "cache:\n  sweep_schedule: \"not a schedule\"\n"))
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("exit code = %d, want %d (err: %v)", code, cli.ExitConfig, err)
	}
}

func TestSettleAuthorizeStats(t *testing.T) {
	cfg := writeConfig(t, "")
	input := `{"meeting_id":"m-1","lang":"en"}`

	out, err := run(t, "authorize", "-c", cfg, "-u", "user-1", "-f", "meeting_summary", "--input", input)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if !strings.Contains(out, "10 credits will be charged") {
		t.Errorf("unexpected authorize output: %s", out)
	}

	out, err = run(t, "settle", "-c", cfg, "-u", "user-1", "-f", "meeting_summary",
		"--input", input, "--result", `{"summary":"done"}`)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if !strings.Contains(out, "charged 10 credits, balance 10") {
		t.Errorf("unexpected settle output: %s", out)
	}

	// Same input with keys reordered is served from cache.
	out, err = run(t, "authorize", "-c", cfg, "-u", "user-1", "-f", "meeting_summary",
		"--input", `{"lang":"en","meeting_id":"m-1"}`, "-o", "json")
	if err != nil {
		t.Fatalf("cached authorize failed: %v", err)
	}
	var d struct {
		Outcome      string          `json:"outcome"`
		CachedResult json.RawMessage `json:"cached_result"`
	}
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode decision: %v\n%s", err, out)
	}
	if d.Outcome != "ALLOWED_CACHED" || !strings.Contains(string(d.CachedResult), "done") {
		t.Errorf("unexpected decision: %s", out)
	}

	out, err = run(t, "stats", "-c", cfg, "-u", "user-1", "-o", "json")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	var stats struct {
		CreditsUsed      int `json:"credits_used"`
		CreditsRemaining int `json:"credits_remaining"`
		Transactions     []struct {
			CreditsDeducted int `json:"credits_deducted"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if stats.CreditsUsed != 10 || stats.CreditsRemaining != 10 {
		t.Errorf("used/remaining = %d/%d, want 10/10", stats.CreditsUsed, stats.CreditsRemaining)
	}
	if len(stats.Transactions) != 2 {
		t.Errorf("transactions = %d, want 2 (charge and cache hit)", len(stats.Transactions))
	}

	out, err = run(t, "stats", "-c", cfg, "-u", "user-1")
	if err != nil {
		t.Fatalf("stats text failed: %v", err)
	}
	for _, want := range []string{"Used:      10 / 20 (50.0%)", "Warnings:  50%", "meeting_summary"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestSettleWithoutResultIsNotCached(t *testing.T) {
	cfg := writeConfig(t, "")
	input := `{"meeting_id":"m-3"}`

	if _, err := run(t, "settle", "-c", cfg, "-u", "user-1", "-f", "meeting_summary", "--input", input); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	out, err := run(t, "authorize", "-c", cfg, "-u", "user-1", "-f", "meeting_summary", "--input", input)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if !strings.Contains(out, "10 credits will be charged") {
		t.Errorf("expected a fresh decision, got: %s", out)
	}
}

func TestSettleDeniedExitCode(t *testing.T) {
	cfg := writeConfig(t, "")

	_, err := run(t, "settle", "-c", cfg, "-u", "user-1", "-f", "weekly_report", "--input", `{"week":1}`)
	if err != nil {
		t.Fatalf("first settle failed: %v", err)
	}
	out, err := run(t, "settle", "-c", cfg, "-u", "user-1", "-f", "meeting_summary", "--input", `{"meeting_id":"m-2"}`)
	if code := cli.ExitCode(err); code != cli.ExitDenied {
		t.Fatalf("exit code = %d, want %d (err: %v)", code, cli.ExitDenied, err)
	}
	if !strings.Contains(out, "not charged: balance 5") {
		t.Errorf("unexpected output: %s", out)
	}

	_, err = run(t, "authorize", "-c", cfg, "-u", "user-1", "-f", "weekly_report", "--input", `{"week":2}`)
	if code := cli.ExitCode(err); code != cli.ExitDenied {
		t.Errorf("cooldown exit code = %d, want %d (err: %v)", code, cli.ExitDenied, err)
	}
}

func TestRequestFlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing user", []string{"authorize", "-f", "chat_message"}},
		{"bad input", []string{"authorize", "-u", "u", "-f", "chat_message", "--input", "{"}},
		{"bad result", []string{"settle", "-u", "u", "-f", "chat_message", "--result", "nope"}},
		{"stats without user", []string{"stats"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if code := cli.ExitCode(err); code != cli.ExitConfig {
				t.Errorf("exit code = %d, want %d (err: %v)", code, cli.ExitConfig, err)
			}
		})
	}
}

func TestSweepCommand(t *testing.T) {
	out, err := run(t, "sweep", "-c", writeConfig(t, ""))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !strings.Contains(out, "Deleted 0 expired cache entries") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "creditgate "+Version) {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = run(t, "version", "-o", "json")
	if err != nil {
		t.Fatalf("version json failed: %v", err)
	}
	if !strings.Contains(out, `"version": "`+Version+`"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		out, err := run(t, "completion", shell)
		if err != nil {
			t.Fatalf("completion %s failed: %v", shell, err)
		}
		if !strings.Contains(out, "creditgate") {
			t.Errorf("%s completion does not mention creditgate", shell)
		}
	}
}
