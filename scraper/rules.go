package scraper

import (
	"strings"

	"hotel-price-tracker/utils"

	"github.com/PuerkitoBio/goquery"
)

// Attributes written by the browser surface from computed styles, since the
// parsed snapshot only carries inline styles
const (
	AttrStruck = "data-pt-struck"
	AttrHidden = "data-pt-hidden"
)

var (
	struckClassHints = []string{"CrossedOut", "crossed-out", "strikethrough", "strike", "line-through"}
	hiddenClassHints = []string{"ScreenReaderOnly", "sr-only", "visually-hidden", "visuallyhidden"}
	voucherHints     = []string{"applied", "Original price", "cashback"}
)

// Text returns the whitespace-collapsed text of the selection
func Text(s *goquery.Selection) string {
	return utils.CollapseSpace(s.Text())
}

// VisibleText is Text without struck-through or hidden descendants, so a
// container holding "<s>RM 400</s> RM 329" reads as "RM 329"
func VisibleText(s *goquery.Selection) string {
	var b strings.Builder
	s.Each(func(_ int, el *goquery.Selection) {
		collectVisible(el, &b)
	})
	return utils.CollapseSpace(b.String())
}

func collectVisible(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			b.WriteString(c.Text())
		case "#comment", "script", "style", "noscript":
		default:
			if isStruckSelf(c) || IsHidden(c) {
				return
			}
			collectVisible(c, b)
		}
	})
}

// ClassName returns the raw class attribute
func ClassName(s *goquery.Selection) string {
	c, _ := s.Attr("class")
	return c
}

// ClassHas reports whether the class attribute contains any of hints
// (substring match, case-sensitive like CSS [class*=...])
func ClassHas(s *goquery.Selection, hints ...string) bool {
	class := ClassName(s)
	if class == "" {
		return false
	}
	for _, h := range hints {
		if strings.Contains(class, h) {
			return true
		}
	}
	return false
}

// IsStruck reports whether the element or its parent renders as crossed out
func IsStruck(s *goquery.Selection) bool {
	return isStruckSelf(s) || isStruckSelf(s.Parent())
}

func isStruckSelf(s *goquery.Selection) bool {
	if s.Length() == 0 {
		return false
	}
	switch goquery.NodeName(s) {
	case "s", "del", "strike":
		return true
	}
	if _, ok := s.Attr(AttrStruck); ok {
		return true
	}
	if ClassHas(s, struckClassHints...) {
		return true
	}
	style, _ := s.Attr("style")
	return strings.Contains(strings.ToLower(style), "line-through")
}

// IsHidden reports whether the element is hidden or screen-reader-only
func IsHidden(s *goquery.Selection) bool {
	if s.Length() == 0 {
		return false
	}
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	if _, ok := s.Attr(AttrHidden); ok {
		return true
	}
	if ClassHas(s, hiddenClassHints...) {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(attr(s, "style")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// IsVoucherNote reports text that annotates a discount rather than stating a price
func IsVoucherNote(text string) bool {
	return utils.ContainsAnyFold(text, voucherHints...)
}

// NoiseLexicon lists site-specific promotional and cross-sell markers
type NoiseLexicon struct {
	// Classes are matched on the element and its parent
	Classes []string
	// Texts are matched on the element text
	Texts []string
}

// Matches reports whether the element carries any noise marker
func (n NoiseLexicon) Matches(s *goquery.Selection, text string) bool {
	if ClassHas(s, n.Classes...) || ClassHas(s.Parent(), n.Classes...) {
		return true
	}
	for _, t := range n.Texts {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// IsDecoy combines the cross-site decoy rules with a site lexicon
func IsDecoy(s *goquery.Selection, text string, noise NoiseLexicon) bool {
	return IsStruck(s) || IsHidden(s) || IsVoucherNote(text) || noise.Matches(s, text)
}

// FindUp walks at most levels ancestors of s looking for selector
func FindUp(s *goquery.Selection, selector string, levels int) *goquery.Selection {
	parent := s.Parent()
	for i := 0; i < levels && parent.Length() > 0; i++ {
		if found := parent.Find(selector).First(); found.Length() > 0 {
			return found
		}
		parent = parent.Parent()
	}
	return nil
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return v
}
