// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/config"
)

// tableReadyJS reports whether the table is rendered with at least one
// visible row. %s and %s are quoted CSS selectors.
const tableReadyJS = `(() => {
	const table = document.querySelector(%s);
	if (!table || table.getClientRects().length === 0) return false;
	for (const row of table.querySelectorAll(%s)) {
		const s = window.getComputedStyle(row);
		if (s.display !== "none" && s.visibility !== "hidden" && row.getClientRects().length > 0) return true;
	}
	return false;
})()`

// Session drives one registration tab. It implements schemas.Collaborator.
type Session struct {
	tabCtx  context.Context
	page    config.PageConfig
	logger  *zap.Logger
	limiter *rate.Limiter
}

var _ schemas.Collaborator = (*Session)(nil)

// NewSession wraps a chromedp tab context.
func NewSession(tabCtx context.Context, page config.PageConfig, logger *zap.Logger) *Session {
	limit := rate.Inf
	if page.MinRefreshInterval > 0 {
		limit = rate.Every(page.MinRefreshInterval)
	}
	if page.PollInterval <= 0 {
		page.PollInterval = 250 * time.Millisecond
	}
	return &Session{
		tabCtx:  tabCtx,
		page:    page,
		logger:  logger.Named("session"),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchCurrentTable waits until the results table shows a visible row, lets
// the page settle, then returns the table region.
func (s *Session) FetchCurrentTable(ctx context.Context) (schemas.Element, error) {
	c, cancel := CombineContext(s.tabCtx, ctx)
	defer cancel()

	check := fmt.Sprintf(tableReadyJS, strconv.Quote(s.page.TableSelector), strconv.Quote(s.page.RowSelector))
	err := s.poll(c, "wait for table", func(ctx context.Context) (bool, error) {
		var ready bool
		err := chromedp.Run(ctx, chromedp.Evaluate(check, &ready))
		return ready, err
	})
	if err != nil {
		return nil, s.unavailable(err)
	}

	if err := sleepContext(c, s.page.SettleDelay); err != nil {
		return nil, s.unavailable(err)
	}

	tables, err := s.query(c, s.page.TableSelector)
	if err != nil {
		return nil, s.unavailable(err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("%s vanished after settling: %w", s.page.TableSelector, schemas.ErrTableUnavailable)
	}
	s.logger.Debug("Results table ready.", zap.String("selector", s.page.TableSelector))
	return tables[0], nil
}

// RefreshSearch presses "search again" and then "search". Calls are spaced by
// at least the configured minimum refresh interval.
func (s *Session) RefreshSearch(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("refresh throttled: %w", err)
	}
	if err := s.clickSelector(ctx, s.page.SearchAgainSelector); err != nil {
		return err
	}
	return s.clickSelector(ctx, s.page.SearchSelector)
}

func (s *Session) Click(ctx context.Context, el schemas.Element, mode schemas.ClickMode) error {
	live, err := asLive(el)
	if err != nil {
		return err
	}
	s.logger.Debug("Clicking.", zap.Stringer("element", live), zap.Stringer("mode", mode))
	if mode == schemas.ClickScripted {
		return live.clickScripted(ctx)
	}
	return live.clickNative(ctx)
}

// WaitInteractable polls until the element is enabled and rendered.
func (s *Session) WaitInteractable(ctx context.Context, el schemas.Element) error {
	live, err := asLive(el)
	if err != nil {
		return err
	}
	return s.poll(ctx, "wait interactable "+live.String(), live.interactable)
}

// ConfirmCommit clicks the save control that follows an add.
func (s *Session) ConfirmCommit(ctx context.Context) error {
	return s.clickSelector(ctx, s.page.ConfirmSelector)
}

// -- Helpers --

// clickSelector waits for the first visible match of selector and clicks it,
// retrying once through script when the native click fails.
func (s *Session) clickSelector(ctx context.Context, selector string) error {
	el, err := s.waitVisible(ctx, selector)
	if err != nil {
		return err
	}
	err = s.WaitInteractable(ctx, el)
	if err == nil {
		err = el.clickNative(ctx)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, schemas.ErrSessionInvalid):
		return err
	}
	s.logger.Debug("Native click failed, using scripted click.", zap.String("selector", selector), zap.Error(err))
	return el.clickScripted(ctx)
}

// waitVisible returns the first visible element matching selector.
func (s *Session) waitVisible(ctx context.Context, selector string) (*liveElement, error) {
	var found *liveElement
	err := s.poll(ctx, "wait for "+selector, func(ctx context.Context) (bool, error) {
		els, err := s.query(ctx, selector)
		if err != nil {
			return false, err
		}
		for _, el := range els {
			if ok, err := el.Visible(ctx); err == nil && ok {
				found = el
				return true, nil
			}
		}
		return false, nil
	})
	return found, err
}

// query returns every document-level match of selector without waiting.
func (s *Session) query(ctx context.Context, selector string) ([]*liveElement, error) {
	c, cancel := CombineContext(s.tabCtx, ctx)
	defer cancel()

	var nodes []*cdp.Node
	if err := chromedp.Run(c, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, classify(s.tabCtx, "query "+selector, err)
	}
	out := make([]*liveElement, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, newLiveElement(s.tabCtx, n))
	}
	return out, nil
}

// poll runs check every poll interval until it reports true or ctx ends.
// Stale reads are retried; a lost session ends the wait at once.
func (s *Session) poll(ctx context.Context, op string, check func(context.Context) (bool, error)) error {
	t := time.NewTicker(s.page.PollInterval)
	defer t.Stop()

	var last error
	for {
		ok, err := check(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			last = classify(s.tabCtx, op, err)
			if errors.Is(last, schemas.ErrSessionInvalid) {
				return last
			}
		}
		select {
		case <-ctx.Done():
			if s.tabCtx.Err() != nil {
				return fmt.Errorf("%s: %w", op, schemas.ErrSessionInvalid)
			}
			if last != nil {
				return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), last)
			}
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-t.C:
		}
	}
}

func (s *Session) unavailable(err error) error {
	if errors.Is(err, schemas.ErrSessionInvalid) {
		return err
	}
	return fmt.Errorf("%w: %w", schemas.ErrTableUnavailable, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
