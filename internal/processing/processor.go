package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	camelBreak  = regexp.MustCompile(`([\p{Ll}\p{N}])(\p{Lu})`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "and": {}, "or": {},
	"in": {}, "for": {}, "by": {}, "to": {}, "per": {}, "with": {},
	"on": {}, "at": {}, "as": {}, "from": {},
}

// CleanText strips HTML entities and punctuation and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// NormalizePlaceName folds a display name into the form stored as a place
// lookup key: "California, USA" and "california usa" normalize equally.
func NormalizePlaceName(name string) string {
	return strings.ToLower(CleanText(name))
}

// PlaceLookupKeys returns the distinct normalized keys a place can be found
// by: its name, its aliases and its name qualified by each parent name.
func PlaceLookupKeys(name string, aliases, parentNames []string) []string {
	candidates := make([]string, 0, 1+len(aliases)+len(parentNames))
	candidates = append(candidates, name)
	candidates = append(candidates, aliases...)
	for _, parent := range parentNames {
		candidates = append(candidates, name+", "+parent)
	}

	seen := make(map[string]struct{}, len(candidates))
	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		key := NormalizePlaceName(c)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// ExtractKeywords returns the most frequent words that are not stop-words.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}

	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	max := limit
	if max <= 0 || max > len(pairs) {
		max = len(pairs)
	}

	keywords := make([]string, 0, max)
	for i := 0; i < max; i++ {
		keywords = append(keywords, pairs[i].word)
	}

	return keywords
}

// BuildDocumentID hashes the identifying fields of a record into a
// deterministic ID, so re-ingesting a record overwrites it.
func BuildDocumentID(parts ...string) string {
	s := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(s[:])
}

// HumanizeDCID derives a display name from an identifier when the record
// carries none: "Count_Person_Female" becomes "Count Person Female" and
// "dc/topic/HealthInsurance" becomes "Health Insurance".
func HumanizeDCID(dcid string) string {
	dcid = strings.TrimRight(dcid, "/")
	if dcid == "" {
		return ""
	}
	last := dcid
	if idx := strings.LastIndex(dcid, "/"); idx >= 0 {
		last = dcid[idx+1:]
	}
	last = camelBreak.ReplaceAllString(last, "$1 $2")
	last = strings.NewReplacer("_", " ", "-", " ").Replace(last)
	return strings.Join(strings.Fields(last), " ")
}
