package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/seatwatch/api/schemas"
)

// staleMessages are CDP error texts returned when a node was removed or
// re-rendered after we obtained its id.
var staleMessages = []string{
	"could not find node with given id",
	"no node with given id found",
	"no node found for given backend id",
	"node is detached from document",
	"node with given id does not belong to the document",
	"cannot find context with specified id",
	"cannot find object with id",
	"could not find object with given id",
	"execution context was destroyed",
	"inspected target navigated or closed",
}

// goneMessages indicate the browser or tab itself has gone away.
var goneMessages = []string{
	"target closed",
	"session closed",
	"no target with given id",
	"websocket: close",
	"use of closed network connection",
	"broken pipe",
	"connection reset by peer",
}

// classify maps a chromedp failure onto the stale/session sentinels so the
// extractor and engine can reason about it. sessionCtx is the tab context; if
// it is done the session is gone regardless of the error text.
func classify(sessionCtx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, schemas.ErrStaleElement) || errors.Is(err, schemas.ErrSessionInvalid) {
		return err
	}
	if sessionCtx != nil && sessionCtx.Err() != nil {
		return fmt.Errorf("%s: %w: %w", op, schemas.ErrSessionInvalid, err)
	}
	if errors.Is(err, chromedp.ErrInvalidTarget) ||
		errors.Is(err, chromedp.ErrInvalidContext) ||
		errors.Is(err, chromedp.ErrChannelClosed) {
		return fmt.Errorf("%s: %w: %w", op, schemas.ErrSessionInvalid, err)
	}

	msg := err.Error()
	var cdpErr *cdproto.Error
	if errors.As(err, &cdpErr) {
		msg = cdpErr.Message
	}
	msg = strings.ToLower(msg)

	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%s: %w: %w", op, schemas.ErrStaleElement, err)
		}
	}
	for _, m := range goneMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%s: %w: %w", op, schemas.ErrSessionInvalid, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
