package geo

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"lunchmind/place"
)

var (
	postalPrefixRe = regexp.MustCompile(`^\d{3,6}`)
	houseNumberRe  = regexp.MustCompile(`\d+(?:之\d+)?號.*$`)
	floorRe        = regexp.MustCompile(`\d+樓.*$`)
	laneRe         = regexp.MustCompile(`\d+[巷弄].*$`)
	roadRe         = regexp.MustCompile(`^.*?(?:大道|[路街])(?:[一二三四五六七八九十\d]+段)?`)
	districtRe     = regexp.MustCompile(`^(.{1,4}?[市縣])(.{1,4}?[區鄉鎮市])`)
	westernHouseRe = regexp.MustCompile(`^\d+[A-Za-z]?(?:[-/]\d+)?\s+`)
	coordsRe       = regexp.MustCompile(`(-?\d{1,2}\.\d{3,})\s*[,\s]\s*(-?\d{1,3}\.\d{3,})`)
)

// cityAbbreviations expand short city names. Keys are matched only when not
// already part of a longer name (北市 inside 新北市 stays untouched).
var cityAbbreviations = []struct{ short, full string }{
	{"北市", "台北市"},
	{"桃市", "桃園市"},
	{"中市", "台中市"},
	{"南市", "台南市"},
	{"高市", "高雄市"},
}

var taipeiDistricts = []string{
	"中山", "信義", "大安", "松山", "中正", "萬華",
	"大同", "士林", "北投", "內湖", "南港", "文山",
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// NormalizeAddress canonicalises a Taiwanese address: no spaces, no postal
// code or country prefix, 臺 written as 台, city abbreviations expanded.
// Non-CJK addresses only get whitespace collapsed.
func NormalizeAddress(address string) string {
	if !hasHan(address) {
		return strings.Join(strings.Fields(address), " ")
	}
	a := strings.Join(strings.Fields(address), "")
	a = strings.ReplaceAll(a, "臺", "台")
	a = strings.TrimPrefix(a, "台灣")
	a = postalPrefixRe.ReplaceAllString(a, "")

	for _, abbr := range cityAbbreviations {
		a = expandAbbreviation(a, abbr.short, abbr.full)
	}

	if strings.HasPrefix(a, "台北市") && !strings.ContainsAny(a, "區鄉鎮") {
		rest := strings.TrimPrefix(a, "台北市")
		for _, d := range taipeiDistricts {
			// 台北市信義路 is a road, not the district
			after := strings.TrimPrefix(rest, d)
			if strings.HasPrefix(rest, d) && !strings.HasPrefix(after, "路") && !strings.HasPrefix(after, "街") && !strings.HasPrefix(after, "大道") {
				a = "台北市" + d + "區" + after
				break
			}
		}
	}
	return a
}

func expandAbbreviation(a, short, full string) string {
	if strings.Contains(a, full) {
		return a
	}
	i := strings.Index(a, short)
	if i < 0 {
		return a
	}
	if i > 0 {
		// part of a longer name such as 新北市
		return a
	}
	return full + a[len(short):]
}

// Refinements returns the queries to geocode, most specific first: the
// normalized address, then without house number, without lane and alley, at
// street level, and finally city plus district.
func Refinements(address string) []string {
	normalized := NormalizeAddress(address)
	if normalized == "" {
		return nil
	}

	var steps []string
	if hasHan(normalized) {
		noHouse := floorRe.ReplaceAllString(houseNumberRe.ReplaceAllString(normalized, ""), "")
		noLane := laneRe.ReplaceAllString(noHouse, "")
		steps = []string{
			normalized,
			noHouse,
			noLane,
			roadRe.FindString(noLane),
		}
		if m := districtRe.FindStringSubmatch(normalized); m != nil {
			steps = append(steps, m[1]+m[2])
		}
	} else {
		parts := strings.Split(normalized, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		noHouse := westernHouseRe.ReplaceAllString(normalized, "")
		steps = []string{normalized, noHouse}
		if len(parts) > 2 {
			steps = append(steps, strings.Join(parts[1:], ", "))
		}
	}

	seen := make(map[string]bool, len(steps))
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// CoordinatesIn finds an explicit "lat,lon" pair in text, as found in map
// links ("@25.0478,121.5170,17z") or pasted by users.
func CoordinatesIn(text string) *place.Coordinates {
	m := coordsRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lon, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil
	}
	return &place.Coordinates{Lat: lat, Lon: lon}
}

// Ambiguous reports whether name looks like a landmark or area name rather
// than an address: no digits, no street or administrative markers, and
// short. Such names are geocoded into several ranked choices.
func Ambiguous(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || CoordinatesIn(name) != nil {
		return false
	}
	for _, r := range name {
		if unicode.IsDigit(r) {
			return false
		}
	}
	if hasHan(name) {
		if strings.ContainsAny(name, "路街巷弄號段") {
			return false
		}
		return len([]rune(strings.Join(strings.Fields(name), ""))) <= 6
	}
	return !strings.Contains(name, ",") && len(strings.Fields(name)) <= 3
}
