package probe

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor pulls one field out of a result container. It returns "" when
// the field is not present.
type Extractor func(*goquery.Selection) string

// Table is one extraction strategy: the container selectors tried in order
// (first selector matching anything wins) and, per field, extractors tried in
// order (first non-empty wins).
type Table struct {
	Name       string
	Containers []string

	Title   []Extractor
	Address []Extractor
	Rating  []Extractor
	Price   []Extractor
	Hours   []Extractor
	Link    []Extractor
}

func first(extractors []Extractor, sel *goquery.Selection) string {
	for _, ex := range extractors {
		if v := ex(sel); v != "" {
			return v
		}
	}
	return ""
}

func scope(sel *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return sel
	}
	return sel.Find(selector)
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Text returns the text of the first element matching selector inside the
// container. An empty selector means the container itself.
func Text(selector string) Extractor {
	return func(sel *goquery.Selection) string {
		var out string
		scope(sel, selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = clean(s.Text())
			return out == ""
		})
		return out
	}
}

// Attr returns attribute attr of the first element matching selector that
// carries it.
func Attr(selector, attr string) Extractor {
	return func(sel *goquery.Selection) string {
		var out string
		scope(sel, selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, ok := s.Attr(attr)
			out = strings.TrimSpace(v)
			return !ok || out == ""
		})
		return out
	}
}

// Pattern runs re over the text of the elements matching selector and
// returns the first submatch, or the whole match when re has no groups.
func Pattern(selector string, re *regexp.Regexp) Extractor {
	return func(sel *goquery.Selection) string {
		var out string
		scope(sel, selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			m := re.FindStringSubmatch(clean(s.Text()))
			if m == nil {
				return true
			}
			out = m[0]
			if len(m) > 1 && m[1] != "" {
				out = m[1]
			}
			out = strings.TrimSpace(out)
			return out == ""
		})
		return out
	}
}

// LinkText returns the first anchor text at least minLen runes long.
func LinkText(minLen int) Extractor {
	return func(sel *goquery.Selection) string {
		var out string
		sel.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := clean(s.Text())
			if len([]rune(t)) >= minLen {
				out = t
				return false
			}
			return true
		})
		return out
	}
}

var ratingRe = regexp.MustCompile(`(?:^|[^\d.,])(\d(?:[.,]\d)?)(?:$|[^\d.,])`)

// ParseRating returns the first number in text that is a plausible star
// rating.
func ParseRating(text string) (float64, bool) {
	for _, m := range ratingRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil {
			continue
		}
		if v >= 0 && v <= 5 {
			return v, true
		}
	}
	return 0, false
}
