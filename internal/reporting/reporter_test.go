// internal/reporting/reporter_test.go
package reporting_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/mocks"
	"github.com/xkilldash9x/seatwatch/internal/reporting"
)

func sampleRecords() []schemas.Record {
	return []schemas.Record{
		{
			Title:        "Calculus I",
			Instructor:   "Smith, Jane",
			MeetingTimes: []string{"MWF 09:00 AM - 09:50 AM"},
			Status:       "FULL",
			Fund:         "Fund A",
			CommitHandle: new(mocks.MockElement),
		},
		{
			Title:        "Calculus II",
			Instructor:   "Jones, Ada",
			MeetingTimes: []string{"TR 11:00 AM - 12:15 PM", "F 02:00 PM - 03:50 PM"},
			Status:       "OPEN",
		},
		{
			Title:      "Linear Algebra",
			Instructor: "Noether, Emmy",
		},
	}
}

func TestPrintSummary(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, reporting.PrintSummary(&out, sampleRecords(), false))
		assert.Equal(t,
			"[1] Calculus I - Smith, Jane [FULL]\n"+
				"[2] Calculus II - Jones, Ada [OPEN]\n"+
				"[3] Linear Algebra - Noether, Emmy\n",
			out.String())
	})

	t.Run("colorized", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, reporting.PrintSummary(&out, sampleRecords(), true))
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "\x1b[31m")
		assert.Contains(t, lines[1], "\x1b[32m")
		assert.True(t, strings.HasPrefix(lines[0], "[1] "), "index stays uncolored")
	})

	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, reporting.PrintSummary(&out, nil, true))
		assert.Empty(t, out.String())
	})
}

func TestPrintDetails(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, reporting.PrintDetails(&out, sampleRecords()[1:]))

	sep := strings.Repeat("-", 40)
	expected := "Course: Calculus II\n" +
		"Instructor: Jones, Ada\n" +
		"Meeting Times:\n" +
		"  TR 11:00 AM - 12:15 PM\n" +
		"  F 02:00 PM - 03:50 PM\n" +
		"Status: OPEN\n" +
		sep + "\n" +
		"Course: Linear Algebra\n" +
		"Instructor: Noether, Emmy\n" +
		"Meeting Times:\n" +
		sep + "\n"
	assert.Equal(t, expected, out.String())
}

func TestWriteJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, reporting.WriteJSON(&out, sampleRecords()))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded, 3)

	assert.Equal(t, float64(1), decoded[0]["index"])
	assert.Equal(t, true, decoded[0]["full"])
	assert.Equal(t, true, decoded[0]["actionable"])
	assert.NotContains(t, decoded[0], "commit_handle")

	assert.Equal(t, false, decoded[1]["full"])
	assert.Equal(t, false, decoded[1]["actionable"])
	assert.NotContains(t, decoded[1], "fund")

	assert.Equal(t, []interface{}{}, decoded[2]["meeting_times"])

	out.Reset()
	require.NoError(t, reporting.WriteJSON(&out, nil))
	assert.Equal(t, "[]", strings.TrimSpace(out.String()))
}

func TestNew(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		r, err := reporting.New(reporting.FormatSummary, "", false)
		require.NoError(t, err)
		assert.NoError(t, r.Close())

		r, err = reporting.New(reporting.FormatJSON, "stdout", false)
		require.NoError(t, err)
		assert.NoError(t, r.Close())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "records.txt")
		r, err := reporting.New(reporting.FormatDetails, path, true)
		require.NoError(t, err)
		require.NoError(t, r.Write(sampleRecords()[:1]))
		require.NoError(t, r.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Course: Calculus I\n")
		assert.Contains(t, string(data), "Fund: Fund A\n")
	})

	t.Run("summary files are never colorized", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "summary.txt")
		r, err := reporting.New(reporting.FormatSummary, path, true)
		require.NoError(t, err)
		require.NoError(t, r.Write(sampleRecords()))
		require.NoError(t, r.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "\x1b[")
	})

	t.Run("unsupported format", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.sarif")
		r, err := reporting.New("sarif", path, false)
		assert.Nil(t, r)
		assert.ErrorContains(t, err, "unsupported output format: sarif")
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "no file is created for a rejected format")
	})

	t.Run("uncreatable path", func(t *testing.T) {
		_, err := reporting.New(reporting.FormatJSON, filepath.Join(t.TempDir(), "missing", "out.json"), false)
		assert.ErrorContains(t, err, "failed to create output file")
	})
}
