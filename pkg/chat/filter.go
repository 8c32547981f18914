package chat

import "strings"

// defaultWordlist is the built-in profanity list. Deployments extend
// it through NewFilter.
var defaultWordlist = []string{
	"damn",
	"hell",
	"crap",
	"bastard",
}

// Filter replaces profane words with asterisks. Matching is
// case-insensitive on whole content substrings.
type Filter struct {
	words []string
}

// NewFilter builds a filter over the given wordlist, falling back to
// the built-in list when none is given.
func NewFilter(words ...string) *Filter {
	if len(words) == 0 {
		words = defaultWordlist
	}
	return &Filter{words: words}
}

// Clean returns content with every listed word masked.
func (f *Filter) Clean(content string) string {
	lower := strings.ToLower(content)
	for _, w := range f.words {
		for {
			i := strings.Index(lower, w)
			if i < 0 {
				break
			}
			mask := strings.Repeat("*", len(w))
			content = content[:i] + mask + content[i+len(w):]
			lower = lower[:i] + mask + lower[i+len(w):]
		}
	}
	return content
}
