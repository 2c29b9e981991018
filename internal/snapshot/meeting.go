package snapshot

import (
	"context"
	"strings"

	"github.com/xkilldash9x/seatwatch/api/schemas"
)

// meetingTimes reads the structured meeting blocks of a cell. When the
// structure cannot be read after the local retries, the cell's whole text is
// split into lines instead. Entries are trimmed and never empty.
func (x *Extractor) meetingTimes(ctx context.Context, cell schemas.Element) []string {
	times, err := retryStale(ctx, x.cfg.MaxAttempts, x.cfg.RetryDelay, x.sleep, func() ([]string, error) {
		return x.structuredMeetings(ctx, cell)
	})
	if err == nil {
		return times
	}
	x.degrade("meeting_times", err)

	text, err := retryStale(ctx, x.cfg.MaxAttempts, x.cfg.RetryDelay, x.sleep, func() (string, error) {
		return cell.Text(ctx)
	})
	if err != nil {
		x.degrade("meeting_times_text", err)
		return []string{}
	}
	return splitLines(text)
}

// structuredMeetings builds one entry per meeting block: the highlighted day
// markers run together ("MWF") followed by the unclassed time spans.
func (x *Extractor) structuredMeetings(ctx context.Context, cell schemas.Element) ([]string, error) {
	blocks, err := cell.Find(ctx, x.cfg.MeetingSelector)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(blocks))
	for _, block := range blocks {
		schedule := block
		if x.cfg.ScheduleSelector != "" {
			found, err := block.Find(ctx, x.cfg.ScheduleSelector)
			if err != nil {
				return nil, err
			}
			if len(found) > 0 {
				schedule = found[0]
			}
		}

		days, err := x.joinTexts(ctx, schedule, x.cfg.DaySelector, "")
		if err != nil {
			return nil, err
		}
		clock, err := x.joinTexts(ctx, schedule, x.cfg.TimeSelector, " ")
		if err != nil {
			return nil, err
		}

		if entry := strings.TrimSpace(days + " " + clock); entry != "" {
			out = append(out, entry)
		}
	}
	return out, nil
}

// joinTexts joins the non-empty, whitespace-collapsed texts of every match.
func (x *Extractor) joinTexts(ctx context.Context, root schemas.Element, selector, sep string) (string, error) {
	if selector == "" {
		return "", nil
	}
	els, err := root.Find(ctx, selector)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(els))
	for _, el := range els {
		s, err := el.Text(ctx)
		if err != nil {
			return "", err
		}
		if s = collapseSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
