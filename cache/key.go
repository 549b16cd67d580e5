package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Args are the named arguments of a cached operation.
type Args map[string]string

// Fingerprint hashes op and its arguments. Argument order does not matter
// and values are compared case and whitespace insensitively.
func Fingerprint(op string, args Args) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(normalize(op)))
	for _, name := range names {
		h.Write([]byte{0})
		h.Write([]byte(normalize(name)))
		h.Write([]byte{'='})
		h.Write([]byte(normalize(args[name])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Terms reduces free text to a canonical term list: lower-cased, stemmed
// where the word is latin, de-duplicated and sorted. "Noodles Ramen" and
// "ramen noodle" give the same terms.
func Terms(text string) string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) {
		w = stemWord(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	sort.Strings(terms)
	return strings.Join(terms, " ")
}

func stemWord(word string) string {
	for _, r := range word {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return word
		}
	}
	stem, err := snowball.Stem(word, "english", true)
	if err != nil {
		return word
	}
	return stem
}
