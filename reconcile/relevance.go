package reconcile

import (
	"strings"

	"lunchmind/place"
)

// DefaultExcludeTerms name places that are clearly not somewhere to eat.
var DefaultExcludeTerms = []string{
	"銀行", "醫院", "診所", "學校", "公司", "政府", "機關",
	"停車場", "加油站", "便利商店", "超市",
	"bank", "hospital", "clinic", "school", "parking", "gas station", "supermarket",
}

// DefaultFoodTerms rescue a name that also mentions an excluded term, as in
// a hospital food court.
var DefaultFoodTerms = []string{
	"餐廳", "飯店", "食堂", "小吃", "美食", "料理", "火鍋", "燒烤",
	"拉麵", "麵", "飯", "便當", "牛排", "壽司", "海鮮", "素食",
	"早餐", "午餐", "晚餐", "宵夜", "咖啡", "茶",
	"restaurant", "cafe", "diner", "kitchen", "food",
}

// relevant reports whether c is worth showing for keyword. A name holding
// any keyword term is always kept; otherwise a name with an excluded term
// and no food term is dropped.
func (r *Reconciler) relevant(c place.ResolvedCandidate, keyword string) bool {
	name := strings.ToLower(c.Name)
	if len([]rune(name)) < 2 {
		return true
	}
	for _, term := range strings.Fields(strings.ToLower(keyword)) {
		if strings.Contains(name, term) {
			return true
		}
	}
	if !containsAny(name, r.exclude) {
		return true
	}
	return containsAny(name, r.food)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func lowered(terms, fallback []string) []string {
	if len(terms) == 0 {
		terms = fallback
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = strings.ToLower(t)
	}
	return out
}
