package probe

import (
	"strings"

	"lunchmind/browser"
)

// Signatures recognise pages that are not result listings.
type Signatures struct {
	// BlockedURL fragments show up in the final URL after an automation
	// redirect.
	BlockedURL []string
	// BlockedBody fragments show up in interstitial challenge pages.
	BlockedBody []string
	// Empty is explicit "nothing found" phrasing.
	Empty []string
}

func DefaultSignatures() Signatures {
	return Signatures{
		BlockedURL: []string{"/sorry/", "sorry/index", "google.com/sorry"},
		BlockedBody: []string{
			"captcha",
			"unusual traffic",
			"our systems have detected",
			"異常流量",
		},
		Empty: []string{
			"did not match any",
			"no results found",
			"can't find",
			"找不到符合",
			"沒有找到",
			"查無結果",
		},
	}
}

func (s Signatures) Blocked(page browser.Page) bool {
	u := strings.ToLower(page.URL)
	for _, frag := range s.BlockedURL {
		if strings.Contains(u, frag) {
			return true
		}
	}
	body := strings.ToLower(page.HTML)
	for _, frag := range s.BlockedBody {
		if strings.Contains(body, frag) {
			return true
		}
	}
	return false
}

func (s Signatures) SaysEmpty(text string) bool {
	text = strings.ToLower(text)
	for _, phrase := range s.Empty {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
