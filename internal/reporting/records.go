package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/selection"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const detailsSeparator = 40

// PrintSummary writes the numbered one-line listing used to pick a section by
// index. Full sections are red and everything else green when colorize is set.
func PrintSummary(w io.Writer, records []schemas.Record, colorize bool) error {
	full := color.New(color.FgRed)
	open := color.New(color.FgGreen)
	if colorize {
		full.EnableColor()
		open.EnableColor()
	} else {
		full.DisableColor()
		open.DisableColor()
	}

	for i, r := range records {
		c := open
		if selection.IsFull(r.Status) {
			c = full
		}
		if _, err := fmt.Fprintf(w, "[%d] %s\n", i+1, c.Sprint(r.Summary())); err != nil {
			return err
		}
	}
	return nil
}

// PrintDetails writes every field of every record, one block per record.
func PrintDetails(w io.Writer, records []schemas.Record) error {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "Course: %s\n", r.Title)
		fmt.Fprintf(&b, "Instructor: %s\n", r.Instructor)
		b.WriteString("Meeting Times:\n")
		for _, mt := range r.MeetingTimes {
			fmt.Fprintf(&b, "  %s\n", mt)
		}
		if r.Status != "" {
			fmt.Fprintf(&b, "Status: %s\n", r.Status)
		}
		if r.Fund != "" {
			fmt.Fprintf(&b, "Fund: %s\n", r.Fund)
		}
		b.WriteString(strings.Repeat("-", detailsSeparator))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type jsonRecord struct {
	Index        int      `json:"index"`
	Title        string   `json:"title"`
	Instructor   string   `json:"instructor"`
	MeetingTimes []string `json:"meeting_times"`
	Status       string   `json:"status,omitempty"`
	Fund         string   `json:"fund,omitempty"`
	Full         bool     `json:"full"`
	Actionable   bool     `json:"actionable"`
}

// WriteJSON writes records as an indented JSON array. The commit handle is a
// live page reference and is reported only as the actionable flag.
func WriteJSON(w io.Writer, records []schemas.Record) error {
	out := make([]jsonRecord, 0, len(records))
	for i, r := range records {
		times := r.MeetingTimes
		if times == nil {
			times = []string{}
		}
		out = append(out, jsonRecord{
			Index:        i + 1,
			Title:        r.Title,
			Instructor:   r.Instructor,
			MeetingTimes: times,
			Status:       r.Status,
			Fund:         r.Fund,
			Full:         selection.IsFull(r.Status),
			Actionable:   r.Actionable(),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return nil
}
