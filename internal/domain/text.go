package domain

import (
	"html"
	"regexp"
	"strings"
)

var (
	crRe        = regexp.MustCompile(`\r\n|\r`)
	multiNLRe   = regexp.MustCompile(`\n{3,}`)
	spaceTabRe  = regexp.MustCompile(`[ \t]+`)
	trailWSRe   = regexp.MustCompile(` +\n`)
	keywordRe   = regexp.MustCompile(`#\w+|@\w+|\w+`)
	markerChars = "#@"
)

// stopWords are common question words dropped during keyword extraction.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`what how why when where who which is are
		was were do does did will would could should the a an and or but in on
		at to for of with by about people saying talking discussing latest
		trending trends news update updates tell me`) {
		stopWords[w] = struct{}{}
	}
}

// CleanText normalizes post text: HTML entities decoded, line endings
// unified, runs of blank lines and inline whitespace collapsed.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = html.UnescapeString(text)
	text = crRe.ReplaceAllString(text, "\n")
	text = multiNLRe.ReplaceAllString(text, "\n\n")
	text = spaceTabRe.ReplaceAllString(text, " ")
	text = trailWSRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// ExtractKeywords pulls search terms out of a natural-language question.
// Hashtags and mentions are kept verbatim; other words must be longer than
// two characters and not stop words. Order is preserved, duplicates dropped,
// and the result is capped at maxTerms.
func ExtractKeywords(query string, maxTerms int) []string {
	words := keywordRe.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if !strings.HasPrefix(w, "#") && !strings.HasPrefix(w, "@") {
			if len(w) <= 2 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
		if maxTerms > 0 && len(terms) >= maxTerms {
			break
		}
	}
	return terms
}

// MatchesAnyKeyword reports whether the lowercased text contains at least one
// of the terms. Leading hashtag/mention markers are stripped before matching
// so "climate" matches "#climate" and "@climate" as well as the bare word.
func MatchesAnyKeyword(text string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, t := range terms {
		if bare := strings.TrimLeft(t, markerChars); bare != "" && strings.Contains(lower, bare) {
			return true
		}
	}
	return false
}

// PostWebURL converts an at:// post URI into its bsky.app web URL. URIs that
// do not look like post records are returned unchanged.
func PostWebURL(uri string) string {
	if !strings.HasPrefix(uri, "at://") {
		return uri
	}
	parts := strings.Split(strings.TrimPrefix(uri, "at://"), "/")
	if len(parts) >= 3 && parts[1] == "app.bsky.feed.post" {
		return "https://bsky.app/profile/" + parts[0] + "/post/" + parts[2]
	}
	return uri
}
