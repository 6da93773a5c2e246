package files

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var collator = collate.New(language.Und, collate.IgnoreCase)

// sortEntries orders directories before files, each group collated by name.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == "directory"
		}
		return collator.CompareString(entries[i].Name, entries[j].Name) < 0
	})
}

func sortStrings(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return collator.CompareString(names[i], names[j]) < 0
	})
}
