// Package console handles the interactive parts of a watch run: line prompts
// before the engine starts and the escape key while it runs.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

const (
	keyInterrupt = 0x03
	keyEscape    = 0x1b
)

// fdReader is satisfied by *os.File.
type fdReader interface {
	io.Reader
	Fd() uintptr
}

// IsTerminal reports whether v is a file attached to an interactive terminal.
func IsTerminal(v interface{}) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// WatchEscape switches the terminal behind in to raw mode and calls cancel when
// the user presses ESC, or Ctrl-C since raw mode suppresses SIGINT. It returns
// once ctx is done or a key fired, restoring the terminal first. Input that is
// not a terminal is left alone and WatchEscape returns immediately.
func WatchEscape(ctx context.Context, in io.Reader, cancel func()) error {
	f, ok := in.(fdReader)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}

	state, err := term.MakeRaw(int(f.Fd()))
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer func() { _ = term.Restore(int(f.Fd()), state) }()

	watchKeys(ctx, in, cancel)
	return nil
}

// watchKeys blocks until ctx is done or an escape key arrives on in, and
// reports whether cancel was called. The reader goroutine may outlive the
// call while a Read is pending.
func watchKeys(ctx context.Context, in io.Reader, cancel func()) bool {
	hit := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := in.Read(buf)
			if isEscape(buf[:n]) {
				close(hit)
				return
			}
			if err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return false
	case <-hit:
		cancel()
		return true
	}
}

// isEscape looks for a bare ESC or Ctrl-C in one read. ESC followed by '[' or
// 'O' starts a cursor or function key sequence and is ignored.
func isEscape(chunk []byte) bool {
	for i, b := range chunk {
		switch b {
		case keyInterrupt:
			return true
		case keyEscape:
			if i+1 < len(chunk) && (chunk[i+1] == '[' || chunk[i+1] == 'O') {
				continue
			}
			return true
		}
	}
	return false
}

// Prompt writes question to w and reads one line from r. The line is trimmed.
// Input is read a byte at a time so nothing past the newline is consumed. An
// input that ends before any byte arrives returns io.EOF.
func Prompt(ctx context.Context, r io.Reader, w io.Writer, question string) (string, error) {
	if question != "" {
		if _, err := io.WriteString(w, question); err != nil {
			return "", err
		}
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := readLine(r)
		done <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.line, res.err
	}
}

func readLine(r io.Reader) (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return strings.TrimSpace(b.String()), nil
			}
			b.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && b.Len() > 0 {
				return strings.TrimSpace(b.String()), nil
			}
			return "", err
		}
	}
}
