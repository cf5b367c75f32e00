// Package paginate decides how a crawl advances from one listing page to
// the next. Two strategies exist, tried in a fixed priority order: a
// script-driven button click with change-detection polling, then a plain
// next-page anchor. When neither applies, the page sequence has ended —
// the normal end-of-results condition, not an error.
package paginate

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/selector"
)

// Defaults for the button strategy's bounded change-detection poll
// (50 x 100ms, about five seconds).
const (
	DefaultPollAttempts = 50
	DefaultPollInterval = 100 * time.Millisecond
)

// Kind names the chosen pagination strategy.
type Kind int

const (
	// KindClick advances by clicking a "next" control in the live page.
	KindClick Kind = iota
	// KindAnchor advances by fetching a resolved next-page URL.
	KindAnchor
)

// ClickSpec carries everything the button strategy needs to run against a
// live page.
type ClickSpec struct {
	ButtonCSS    string
	FirstCardCSS string
	Detection    string // models.DetectHref or models.DetectDetach
}

// Decision is the pagination engine's verdict for one listing page.
type Decision struct {
	Kind    Kind
	NextURL string // KindAnchor only, absolute
	Click   ClickSpec
}

// Decide inspects the current listing markup and picks the next-page
// strategy. The button strategy requires a present, non-disabled control
// and a configured first-card selector for change detection; otherwise the
// anchor strategy is tried. Nil means the sequence terminates here.
func Decide(doc *html.Node, rules *models.SectionRules, base *url.URL) *Decision {
	if rules == nil {
		return nil
	}

	if rules.NextButton != nil && strings.TrimSpace(rules.NextButton.CSS) != "" && rules.FirstCardCSS != "" {
		buttons := selector.Nodes(doc, rules.NextButton)
		if len(buttons) > 0 && !isDisabled(buttons[0]) {
			detection := rules.ChangeDetection
			if detection == "" {
				detection = models.DetectHref
			}
			return &Decision{
				Kind: KindClick,
				Click: ClickSpec{
					ButtonCSS:    rules.NextButton.CSS,
					FirstCardCSS: rules.FirstCardCSS,
					Detection:    detection,
				},
			}
		}
	}

	if rules.NextAnchor != nil {
		href := strings.TrimSpace(selector.ResolveOne(doc, &rules.NextAnchor.Locator))
		if href != "" && href != "#" {
			if base != nil {
				if resolved, err := base.Parse(href); err == nil {
					href = resolved.String()
				}
			}
			return &Decision{Kind: KindAnchor, NextURL: href}
		}
	}

	return nil
}

// isDisabled reports whether a next control is unusable in the captured
// markup. The live click script re-checks the DOM property.
func isDisabled(node *html.Node) bool {
	for _, a := range node.Attr {
		switch {
		case strings.EqualFold(a.Key, "disabled"):
			return true
		case strings.EqualFold(a.Key, "aria-disabled") && strings.EqualFold(a.Val, "true"):
			return true
		}
	}
	return false
}

// ScriptRunner is the slice of the browser session the button strategy
// needs: script evaluation against the live page.
type ScriptRunner interface {
	EvalBool(ctx context.Context, js string) (bool, error)
	EvalString(ctx context.Context, js string) (string, error)
}

// AdvanceByClick clicks the next control and polls the live page until the
// configured change signal fires: the first card's link changing, or the
// previously-first card detaching from the document. Attempts and interval
// bound the wait; hitting the bound reports false with no error, which the
// caller treats as pagination ending. The click itself reporting false
// (control gone or disabled in the live DOM) also ends pagination.
func AdvanceByClick(ctx context.Context, runner ScriptRunner, spec ClickSpec, attempts int, interval time.Duration) (bool, error) {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	firstCSS := strconv.Quote(spec.FirstCardCSS)
	buttonCSS := strconv.Quote(spec.ButtonCSS)

	var hrefBefore string
	if spec.Detection == models.DetectDetach {
		// The poll can't hold a JS element reference across evaluations,
		// so the current first card is marked and detachment observed as
		// the marked node leaving the document.
		marked, err := runner.EvalBool(ctx, `() => {
			const el = document.querySelector(`+firstCSS+`);
			if (!el) return false;
			el.setAttribute("data-page-mark", "1");
			return true;
		}`)
		if err != nil {
			return false, err
		}
		// No card to mark means no change signal to observe.
		if !marked {
			return false, nil
		}
	} else {
		before, err := runner.EvalString(ctx, firstCardHrefJS(firstCSS))
		if err != nil {
			return false, err
		}
		hrefBefore = before
	}

	clicked, err := runner.EvalBool(ctx, `() => {
		const btn = document.querySelector(`+buttonCSS+`);
		if (!btn || btn.disabled) return false;
		btn.click();
		return true;
	}`)
	if err != nil {
		return false, err
	}
	if !clicked {
		return false, nil
	}

	markedCSS := strconv.Quote(spec.FirstCardCSS + `[data-page-mark="1"]`)
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}

		if spec.Detection == models.DetectDetach {
			detached, err := runner.EvalBool(ctx, `() => {
				const el = document.querySelector(`+markedCSS+`);
				return !el || !el.isConnected;
			}`)
			if err != nil {
				return false, err
			}
			if detached {
				return true, nil
			}
			continue
		}

		now, err := runner.EvalString(ctx, firstCardHrefJS(firstCSS))
		if err != nil {
			return false, err
		}
		if now != "" && now != hrefBefore {
			return true, nil
		}
	}

	// Poll bound reached: pagination stops, it does not raise.
	return false, nil
}

func firstCardHrefJS(quotedCSS string) string {
	return `() => {
		const el = document.querySelector(` + quotedCSS + `);
		return el && el.href ? el.href : "";
	}`
}
