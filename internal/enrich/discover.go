package enrich

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/campaign-cli/internal/model"
)

// FilterAndDedup drops discovered records without any contact channel and
// collapses duplicates within the batch. Cross-batch duplicates are handled
// by the store's (campaign_id, place_id) upsert key; this pass also catches
// the same business listed under two place IDs with matching name+address.
func FilterAndDedup(leads []model.Lead) []model.Lead {
	seen := make(map[string]bool, len(leads))
	out := make([]model.Lead, 0, len(leads))

	for _, l := range leads {
		if !l.HasContactChannel() {
			continue
		}
		key := l.PlaceID
		if key == "" {
			key = dedupKey(l.Name, l.Address)
		}
		if seen[key] {
			continue
		}
		if nk := dedupKey(l.Name, l.Address); nk != "" && seen[nk] {
			continue
		}
		seen[key] = true
		if nk := dedupKey(l.Name, l.Address); nk != "" {
			seen[nk] = true
		}
		out = append(out, l)
	}
	return out
}

var foldCaser = cases.Fold()

// stripMarks decomposes and removes combining marks so accented and plain
// spellings compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// dedupKey normalizes a business name and address into a comparison key.
// "Joe's Café, 12 Main St." and "JOES CAFE 12 MAIN ST" produce the same key.
func dedupKey(name, address string) string {
	if name == "" {
		return ""
	}
	raw, _, err := transform.String(stripMarks, name+" "+address)
	if err != nil {
		raw = name + " " + address
	}
	raw = foldCaser.String(raw)

	var b strings.Builder
	b.Grow(len(raw))
	lastSpace := true
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) && !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
