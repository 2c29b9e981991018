// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/config"
	"github.com/xkilldash9x/seatwatch/internal/mocks"
	"github.com/xkilldash9x/seatwatch/internal/observability"
	"github.com/xkilldash9x/seatwatch/internal/poller"
	"github.com/xkilldash9x/seatwatch/internal/snapshot"
)

const fixturePage = "../internal/snapshot/testdata/results.html"

// writeTestConfig writes a config that keeps logs quiet and off disk.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "logger:\n  level: error\n  log_file: \"\"\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs a fresh root command and captures its output streams.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	rootCmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(bytes.NewReader(nil))

	base := []string{"--config", writeTestConfig(t, ""), "--env-file", ""}
	rootCmd.SetArgs(append(args, base...))
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	stdout, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("seatwatch version %s\n", Version), stdout)
}

func TestVersionCmd(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("seatwatch version %s\n", Version), stdout)
}

func TestRootCmd_BadConfigFile(t *testing.T) {
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"parse", fixturePage, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--env-file", ""})
	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "error reading config file")
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	cfg := writeTestConfig(t, "extractor:\n  max_attempts: 0\n")
	rootCmd.SetArgs([]string{"parse", fixturePage, "--config", cfg, "--env-file", ""})
	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestParseCmd_Summary(t *testing.T) {
	stdout, stderr, err := execute(t, "parse", fixturePage)
	require.NoError(t, err)
	assert.Equal(t,
		"[1] Calculus I - Smith, Jane (Primary) [FULL]\n"+
			"[2] Calculus II - Jones, Ada [OPEN]\n"+
			"[3] Linear Algebra - Noether, Emmy [Full: waitlist open]\n",
		stdout)
	assert.Empty(t, stderr)
}

func TestParseCmd_Details(t *testing.T) {
	stdout, _, err := execute(t, "parse", fixturePage, "--format", "details")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Course: Calculus II\nInstructor: Jones, Ada\nMeeting Times:\n  TR 11:00 AM - 12:15 PM\n  F 02:00 PM - 03:50 PM\n")
	assert.Contains(t, stdout, "Fund: Fund B\n")
}

func TestParseCmd_JSON(t *testing.T) {
	stdout, _, err := execute(t, "parse", fixturePage, "--json")
	require.NoError(t, err)

	var decoded []struct {
		Index      int    `json:"index"`
		Title      string `json:"title"`
		Full       bool   `json:"full"`
		Actionable bool   `json:"actionable"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, "Calculus II", decoded[1].Title)
	assert.False(t, decoded[1].Full)
	assert.True(t, decoded[1].Actionable)
	assert.False(t, decoded[2].Actionable)
}

func TestParseCmd_Preference(t *testing.T) {
	tests := []struct {
		name       string
		preference string
		expected   string
	}{
		{"blank picks first open", "", "Selected [2] Calculus II - Jones, Ada [OPEN]: open, would commit\n"},
		{"index ignores availability", "1", "Selected [1] Calculus I - Smith, Jane (Primary) [FULL]: full, would keep polling\n"},
		{"keyword", "noether", "Selected [3] Linear Algebra - Noether, Emmy [Full: waitlist open]: full, would keep polling\n"},
		{"unmatched keyword falls back to first open", "Turing", "Selected [2] Calculus II - Jones, Ada [OPEN]: open, would commit\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := execute(t, "parse", fixturePage, "--preference", tt.preference)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, stderr)
		})
	}
}

func TestParseCmd_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	stdout, _, err := execute(t, "parse", fixturePage, "--json", "--output", path)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Calculus I"`)
	assert.Contains(t, string(data), `"actionable"`)
}

func TestParseCmd_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "parse", filepath.Join(t.TempDir(), "nope.html"))
		assert.ErrorContains(t, err, "failed to open")
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, _, err := execute(t, "parse", fixturePage, "--format", "sarif")
		assert.ErrorContains(t, err, "unsupported output format: sarif")
	})

	t.Run("argument required", func(t *testing.T) {
		_, _, err := execute(t, "parse")
		assert.Error(t, err)
	})
}

func TestParseCmd_WholeDocumentFallback(t *testing.T) {
	page := filepath.Join(t.TempDir(), "bare.html")
	require.NoError(t, os.WriteFile(page, []byte(`<table><tbody><tr>
		<td data-content="Title">Physics</td><td data-content="Instructor">Curie, Marie</td>
		<td data-content="Status">OPEN</td></tr></tbody></table>`), 0o600))

	stdout, _, err := execute(t, "parse", page)
	require.NoError(t, err)
	assert.Equal(t, "[1] Physics - Curie, Marie [OPEN]\n", stdout)
}

func TestParseFile_UsesConfiguredSelectors(t *testing.T) {
	defaults := config.NewDefaultConfig()
	page := defaults.Page()
	page.TableSelector = "#not-on-this-page"

	cfg := new(mocks.MockConfig)
	cfg.On("Page").Return(page)
	cfg.On("Extractor").Return(defaults.Extractor())

	a := &app{cfg: cfg, logger: zaptest.NewLogger(t)}
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	records, err := a.parseFile(cmd, fixturePage)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Calculus I", records[0].Title)
	cfg.AssertExpectations(t)
}

func TestReportOutcome(t *testing.T) {
	sessionErr := fmt.Errorf("fetch: %w", schemas.ErrSessionInvalid)
	tests := []struct {
		name      string
		outcome   schemas.Outcome
		runErr    error
		wantOut   string
		wantErr   bool
		wrapsLost bool
	}{
		{name: "committed", outcome: schemas.OutcomeCommitted, wantOut: "Registration submitted.\n"},
		{name: "cancelled", outcome: schemas.OutcomeCancelled, wantOut: "Cancelled by user.\n"},
		{name: "exhausted", outcome: schemas.OutcomeExhausted, wantOut: "Gave up after 4 attempts.\n", wantErr: true},
		{name: "aborted", outcome: schemas.OutcomeAborted, runErr: sessionErr, wantOut: "Browser session was lost.\n", wantErr: true, wrapsLost: true},
		{name: "no match", outcome: schemas.OutcomeNoMatch, wantOut: "Watch ended: no_match.\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := reportOutcome(&out, tt.outcome, tt.runErr, schemas.PollState{AttemptCount: 4})
			assert.Equal(t, tt.wantOut, out.String())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errWatchFailed)
			assert.Equal(t, tt.wrapsLost, errors.Is(err, schemas.ErrSessionInvalid))
		})
	}
}

func TestApplyWatchFlags(t *testing.T) {
	t.Run("set flags reach the config", func(t *testing.T) {
		watchCmd := newWatchCmd(newApp())
		require.NoError(t, watchCmd.ParseFlags([]string{"--max-attempts", "7", "--retry-delay", "1500ms", "--metrics-addr", "127.0.0.1:9464"}))

		cfg := new(mocks.MockConfig)
		cfg.On("SetPollMaxAttempts", 7).Once()
		cfg.On("SetPollRetryDelay", 1500*time.Millisecond).Once()
		cfg.On("SetMetricsAddr", "127.0.0.1:9464").Once()

		require.NoError(t, applyWatchFlags(watchCmd, cfg))
		cfg.AssertExpectations(t)
	})

	t.Run("unset flags leave config alone", func(t *testing.T) {
		watchCmd := newWatchCmd(newApp())
		require.NoError(t, watchCmd.ParseFlags(nil))

		cfg := new(mocks.MockConfig)
		require.NoError(t, applyWatchFlags(watchCmd, cfg))
		cfg.AssertNotCalled(t, "SetPollMaxAttempts", mock.Anything)
		cfg.AssertNotCalled(t, "SetPollRetryDelay", mock.Anything)
	})

	t.Run("negative attempts rejected", func(t *testing.T) {
		watchCmd := newWatchCmd(newApp())
		require.NoError(t, watchCmd.ParseFlags([]string{"--max-attempts=-1"}))
		assert.ErrorContains(t, applyWatchFlags(watchCmd, new(mocks.MockConfig)), "must not be negative")
	})

	t.Run("applies to a loaded config", func(t *testing.T) {
		a := newApp()
		a.cfgFile = writeTestConfig(t, "poll:\n  max_attempts: 3\n  retry_delay: 10s\n")
		a.envFile = ""
		require.NoError(t, a.initialize())
		assert.Equal(t, 3, a.cfg.Poll().MaxAttempts)

		watchCmd := newWatchCmd(a)
		require.NoError(t, watchCmd.ParseFlags([]string{"--max-attempts", "9"}))
		require.NoError(t, applyWatchFlags(watchCmd, a.cfg))
		assert.Equal(t, 9, a.cfg.Poll().MaxAttempts)
		assert.Equal(t, 10*time.Second, a.cfg.Poll().RetryDelay)
	})
}

func TestApplyBrowserFlags(t *testing.T) {
	rootCmd := NewRootCommand()
	require.NoError(t, rootCmd.ParseFlags([]string{"--headless", "--remote-url", "http://127.0.0.1:9222"}))

	cfg := new(mocks.MockConfig)
	cfg.On("SetBrowserHeadless", true).Once()
	cfg.On("SetBrowserRemoteURL", "http://127.0.0.1:9222").Once()
	require.NoError(t, applyBrowserFlags(rootCmd, cfg))
	cfg.AssertExpectations(t)
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SEATWATCH_PAGE_TABLE_SELECTOR=#results\n"), 0o600))
	t.Setenv("SEATWATCH_POLL_MAX_ATTEMPTS", "12")
	t.Cleanup(func() { _ = os.Unsetenv("SEATWATCH_PAGE_TABLE_SELECTOR") })

	a := newApp()
	a.cfgFile = writeTestConfig(t, "")
	a.envFile = envFile
	require.NoError(t, a.initialize())
	assert.Equal(t, 12, a.cfg.Poll().MaxAttempts)
	assert.Equal(t, "#results", a.cfg.Page().TableSelector)
}

func TestWatchCmd_MetricsAddressInUse(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	// The bind fails before any browser is launched.
	_, _, err = execute(t, "watch", "2", "--metrics-addr", taken.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind metrics address")
}

func TestRunWithHelpers_MetricsFailureKeepsWatching(t *testing.T) {
	doc, err := snapshot.ParseHTML(strings.NewReader(`<table id="table1"><tbody><tr>
<td data-content="Title">Biology</td><td data-content="Instructor">Darwin</td>
<td data-content="Status">OPEN</td><td data-property="add"><button>Add</button></td>
</tr></tbody></table>`))
	require.NoError(t, err)
	found, err := doc.Find(context.Background(), "#table1")
	require.NoError(t, err)
	require.Len(t, found, 1)

	ops := new(mocks.MockCollaborator)
	// The fetch outlasts the metrics server's failed start.
	ops.On("FetchCurrentTable", mock.Anything).Return(found[0], nil).After(50 * time.Millisecond).Once()
	ops.On("WaitInteractable", mock.Anything, mock.Anything).Return(nil).Once()
	ops.On("Click", mock.Anything, mock.Anything, schemas.ClickNative).Return(nil).Once()
	ops.On("ConfirmCommit", mock.Anything).Return(nil).Once()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	logger := zaptest.NewLogger(t)
	metrics := observability.NewMetrics()
	server := observability.NewMetricsServer(taken.Addr().String(), metrics, logger)
	engine := poller.NewEngine(ops, poller.WithLogger(logger), poller.WithObserver(metrics))

	outcome, runErr := runWithHelpers(context.Background(), logger, engine, "", bytes.NewReader(nil), make(chan struct{}), server)
	require.NoError(t, runErr)
	assert.Equal(t, schemas.OutcomeCommitted, outcome)
	ops.AssertExpectations(t)
}
