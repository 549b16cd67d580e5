package interpret

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

var (
	// "ramen near Taipei Main Station", "noodles around Ximen"
	latinPlaceRe = regexp.MustCompile(`(?i)\b(?:near|around|close to|by)\s+(.+)$`)
	// "台北車站附近的拉麵", "在西門町周邊吃飯"
	hanPlaceRe = regexp.MustCompile(`([\p{L}\d]{2,20}?)(?:附近|周邊|周遭|旁邊|一帶)的?`)

	separators = regexp.MustCompile(`[\s,，、;；。.!！?？/|]+|的`)
)

var englishStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "with": true, "can": true, "do": true, "have": true, "this": true,
	"we": true, "you": true, "me": true, "my": true, "i": true, "want": true,
	"some": true, "good": true, "best": true, "place": true, "places": true,
	"eat": true, "food": true, "lunch": true, "today": true, "something": true,
	"find": true, "recommend": true, "please": true, "let's": true, "lets": true,
}

// hanFillers are stripped from the text before splitting. Longer phrases
// come first so they win over their substrings.
var hanFillers = []string{
	"有沒有", "推薦一下", "我想要吃", "我想吃", "我要吃", "想要吃", "今天中午", "今天",
	"中午", "午餐", "晚餐", "推薦", "好吃", "想吃", "要吃", "我想", "一下", "一些", "幫我", "找",
}

// KeywordInterpreter extracts keywords locally, without calling any service.
// Stop words are dropped and latin words are deduplicated by their stem.
type KeywordInterpreter struct {
	stopWords map[string]bool
	fillers   []string
}

func NewKeywordInterpreter() *KeywordInterpreter {
	return &KeywordInterpreter{stopWords: englishStopWords, fillers: hanFillers}
}

func (k *KeywordInterpreter) Interpret(ctx context.Context, text string) (Interpretation, error) {
	if err := ctx.Err(); err != nil {
		return Interpretation{}, err
	}
	text = strings.TrimSpace(text)

	var out Interpretation
	text, out.LocationHint = k.splitPlace(text)

	for _, f := range k.fillers {
		text = strings.ReplaceAll(text, f, " ")
	}

	seen := make(map[string]bool)
	for _, word := range separators.Split(text, -1) {
		word = strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		word = strings.TrimPrefix(word, "吃")
		if word == "" {
			continue
		}
		stem := word
		if isLatin(word) {
			word = strings.ToLower(word)
			if len(word) < 2 || k.stopWords[word] {
				continue
			}
			if s, err := snowball.Stem(word, "english", true); err == nil {
				stem = s
			}
		}
		if seen[stem] {
			continue
		}
		seen[stem] = true
		out.Keywords = append(out.Keywords, word)
	}

	if len(out.Keywords) == 0 {
		return out, ErrNoKeywords
	}
	return out, nil
}

// splitPlace removes a "near X" phrase from text and returns X separately.
func (k *KeywordInterpreter) splitPlace(text string) (rest, hint string) {
	if m := latinPlaceRe.FindStringSubmatchIndex(text); m != nil {
		return text[:m[0]], strings.TrimSpace(text[m[2]:m[3]])
	}
	if m := hanPlaceRe.FindStringSubmatchIndex(text); m != nil {
		hint = text[m[2]:m[3]]
		// "我想在西門町" starts matching at the beginning of the sentence
		for _, marker := range []string{"在", "到"} {
			if i := strings.LastIndex(hint, marker); i >= 0 {
				hint = hint[i+len(marker):]
			}
		}
		return text[:m[0]] + " " + text[m[1]:], hint
	}
	return text, ""
}

func isLatin(word string) bool {
	for _, r := range word {
		if r > unicode.MaxLatin1 {
			return false
		}
	}
	return true
}
