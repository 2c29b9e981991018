// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/seatwatch/api/schemas"
)

// Supported output formats.
const (
	FormatSummary = "summary"
	FormatDetails = "details"
	FormatJSON    = "json"
)

// Reporter writes a snapshot of records to an output.
type Reporter interface {
	Write(records []schemas.Record) error
	// Close flushes and releases the underlying output.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

type formatReporter struct {
	w        io.WriteCloser
	format   string
	colorize bool
}

func (r *formatReporter) Write(records []schemas.Record) error {
	switch r.format {
	case FormatDetails:
		return PrintDetails(r.w, records)
	case FormatJSON:
		return WriteJSON(r.w, records)
	default:
		return PrintSummary(r.w, records, r.colorize)
	}
}

func (r *formatReporter) Close() error {
	return r.w.Close()
}

// New creates a reporter for format writing to outputPath, or to stdout when
// the path is empty or "stdout". Colors are only used on stdout.
func New(format, outputPath string, colorize bool) (Reporter, error) {
	switch format {
	case FormatSummary, FormatDetails, FormatJSON:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if outputPath == "" || outputPath == "stdout" {
		return &formatReporter{w: &nopWriteCloser{os.Stdout}, format: format, colorize: colorize}, nil
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	return &formatReporter{w: f, format: format}, nil
}
