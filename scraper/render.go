package scraper

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// lastChanceTimeout bounds the single snapshot taken once the budget is spent
const lastChanceTimeout = 2 * time.Second

var digitRegex = regexp.MustCompile(`\d`)

// Matcher finds a price-bearing element when none of the ranked selectors match
type Matcher func(doc *goquery.Document) *goquery.Selection

// WaitSpec describes what "rendered" means for a site
type WaitSpec struct {
	// Selectors are tried in order; the first one with a match wins
	Selectors []string
	Fallback  Matcher
	// LastChance selectors are tried once when the budget runs out
	LastChance []string
	Budget     time.Duration
}

// WaitResult reports how the wait resolved. Found is false on timeout, which
// callers treat as "proceed with whatever is there".
type WaitResult struct {
	Found   bool
	Via     string
	Anchor  *goquery.Selection
	Doc     *goquery.Document
	Elapsed time.Duration
}

// CurrencyMatcher scans candidates (optionally inside the first match of
// scope) for short text carrying a currency token and a digit
func CurrencyMatcher(scope, candidates string, currency *regexp.Regexp, maxLen int) Matcher {
	return func(doc *goquery.Document) *goquery.Selection {
		root := doc.Selection
		if scope != "" {
			root = doc.Find(scope).First()
			if root.Length() == 0 {
				return nil
			}
		}
		var found *goquery.Selection
		root.Find(candidates).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := strings.TrimSpace(el.Text())
			if maxLen > 0 && len([]rune(text)) >= maxLen {
				return true
			}
			if currency.MatchString(text) && digitRegex.MatchString(text) {
				found = el
				return false
			}
			return true
		})
		return found
	}
}

// WaitForRender resolves as soon as spec matches the surface, or when the
// budget runs out. It checks immediately, then re-checks on every mutation
// batch. It resolves exactly once and always releases its subscription.
func WaitForRender(ctx context.Context, surface Surface, spec WaitSpec) WaitResult {
	start := time.Now()
	waitCtx := ctx
	if spec.Budget > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, spec.Budget)
		defer cancel()
	}

	finish := func(r WaitResult) WaitResult {
		r.Elapsed = time.Since(start)
		return r
	}

	if r, ok := probe(waitCtx, surface, spec); ok {
		return finish(r)
	}

	changes, unsubscribe := surface.Subscribe(waitCtx)
	defer unsubscribe()

	// A mutation may have landed between the first probe and the subscription
	if r, ok := probe(waitCtx, surface, spec); ok {
		return finish(r)
	}

	for {
		select {
		case <-waitCtx.Done():
			return finish(lastChance(ctx, surface, spec))
		case <-changes:
			if r, ok := probe(waitCtx, surface, spec); ok {
				return finish(r)
			}
		}
	}
}

func probe(ctx context.Context, surface Surface, spec WaitSpec) (WaitResult, bool) {
	doc, err := surface.Snapshot(ctx)
	if err != nil || doc == nil {
		return WaitResult{}, false
	}
	if anchor, sel := firstMatch(doc, spec.Selectors); anchor != nil {
		return WaitResult{Found: true, Via: sel, Anchor: anchor, Doc: doc}, true
	}
	if spec.Fallback != nil {
		if anchor := spec.Fallback(doc); anchor != nil && anchor.Length() > 0 {
			return WaitResult{Found: true, Via: "fallback", Anchor: anchor, Doc: doc}, true
		}
	}
	return WaitResult{Doc: doc}, false
}

func lastChance(parent context.Context, surface Surface, spec WaitSpec) WaitResult {
	if len(spec.LastChance) == 0 || parent.Err() != nil {
		return WaitResult{}
	}
	ctx, cancel := context.WithTimeout(parent, lastChanceTimeout)
	defer cancel()

	doc, err := surface.Snapshot(ctx)
	if err != nil || doc == nil {
		return WaitResult{}
	}
	if anchor, sel := firstMatch(doc, spec.LastChance); anchor != nil {
		return WaitResult{Found: true, Via: "last-chance " + sel, Anchor: anchor, Doc: doc}
	}
	return WaitResult{Doc: doc}
}

func firstMatch(doc *goquery.Document, selectors []string) (*goquery.Selection, string) {
	for _, sel := range selectors {
		if m := doc.Find(sel).First(); m.Length() > 0 {
			return m, sel
		}
	}
	return nil, ""
}
