package probe

import "regexp"

var (
	addressRe = regexp.MustCompile(`(?:\d{3,6})?[\p{Han}]{1,3}[市縣][\p{Han}]{1,4}[區鄉鎮市][^\s·,，|]{0,40}?\d+(?:之\d+)?號|\d+\s+[A-Z][\w .]+(?:St|Street|Rd|Road|Ave|Avenue|Blvd|Lane|Ln)\.?(?:,\s*[\w ]+)?`)
	priceRe   = regexp.MustCompile(`(?:NT)?\$\d{2,4}(?:\s*[-–]\s*\d{2,4}|\+)?|\d{2,4}(?:\s*[-–]\s*\d{2,4})?元(?:以上)?|\${1,4}(?:\s|$)`)
	hoursRe   = regexp.MustCompile(`(?i)(permanently closed|temporarily closed|open 24 hours|opens? (?:soon|at)?[^·|]{0,20}|closes? (?:soon|at)?[^·|]{0,20}|closed[^·|]{0,20}|永久停業|暫停營業|暫時關閉|已歇業|24 小時營業|營業中[^·|]{0,12}|即將打烊[^·|]{0,12}|已打烊[^·|]{0,12}|休息中[^·|]{0,12})`)
)

var defaultLinks = []Extractor{
	Attr("a[href*='/maps/place']", "href"),
	Attr("a[href*='place_id=']", "href"),
	Attr("a[href*='maps.google']", "href"),
	Attr("a[data-cid]", "href"),
	Attr("a.hfpxzc", "href"),
}

var defaultRating = []Extractor{
	Text("span.MW4etd"),
	Text("span.yi40Hd"),
	Text(".BTtC6e"),
	Attr("span[aria-label*='顆星']", "aria-label"),
	Attr("span[aria-label*='stars']", "aria-label"),
	Attr("span[role='img'][aria-label]", "aria-label"),
}

var defaultPrice = []Extractor{
	Pattern("span.UY7F9", priceRe),
	Pattern(".r4GTf", priceRe),
	Attr("span[aria-label*='價格']", "aria-label"),
	Attr("span[aria-label*='Price']", "aria-label"),
	Pattern("", priceRe),
}

var defaultHours = []Extractor{
	Pattern("div.W4Efsd", hoursRe),
	Pattern("", hoursRe),
}

// MapsTable parses the interactive map listing feed.
func MapsTable() Table {
	return Table{
		Name:       "maps",
		Containers: []string{"div.Nv2PK", "div[role='article']", "div.UaQhfb"},
		Title: []Extractor{
			Text("div.qBF1Pd"),
			Text(".fontHeadlineSmall"),
			Attr("a.hfpxzc", "aria-label"),
			Attr("", "aria-label"),
			Text("div[role='heading']"),
		},
		Address: []Extractor{
			Pattern("div.W4Efsd span", addressRe),
			Text("div.W4Efsd span.ZDu9vd"),
			Pattern("", addressRe),
		},
		Rating: defaultRating,
		Price:  defaultPrice,
		Hours:  defaultHours,
		Link:   defaultLinks,
	}
}

// LocalTable parses the local results pack of the web search page.
func LocalTable() Table {
	return Table{
		Name:       "local",
		Containers: []string{"div.VkpGBb", "div.rllt__details", "div.dbg0pd"},
		Title: []Extractor{
			Text("div.dbg0pd"),
			Text("span.OSrXXb"),
			Text("div[role='heading']"),
			LinkText(4),
		},
		Address: []Extractor{
			Pattern(".rllt__details div", addressRe),
			Pattern("", addressRe),
			Text("span.LrzXr"),
		},
		Rating: defaultRating,
		Price:  defaultPrice,
		Hours:  defaultHours,
		Link:   defaultLinks,
	}
}

// WebTable parses organic web results, where the address only ever shows
// up in the snippet text.
func WebTable() Table {
	return Table{
		Name:       "web",
		Containers: []string{"div.MjjYud", "div.tF2Cxc", ".g", "article"},
		Title: []Extractor{
			Text("h3.LC20lb"),
			Text("h3"),
			Text("div[role='heading']"),
		},
		Address: []Extractor{
			Text("span.LrzXr"),
			Attr("[data-attrid='kc:/location/location:address']", "data-address"),
			Text("[data-attrid='kc:/location/location:address']"),
			Pattern("", addressRe),
		},
		Rating: defaultRating,
		Price:  defaultPrice,
		Hours:  defaultHours,
		Link: append([]Extractor{
			Attr("a[href^='http']", "href"),
		}, defaultLinks...),
	}
}

// DefaultTables returns the built-in strategies; the first one is the
// fallback for unknown strategy names.
func DefaultTables() []Table {
	return []Table{MapsTable(), LocalTable(), WebTable()}
}
