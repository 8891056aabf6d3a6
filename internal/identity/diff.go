package identity

import (
	"sort"

	"cortex/internal/core"
)

// Diff compares two extractions of the same file and classifies every
// symbol. Updated means the stable ID survived but the content hash moved;
// identical (id, content_hash) pairs produce no entry at all, which is what
// keeps unchanged symbols from ever reaching a provider.
func Diff(filePath string, lang core.Language, old, new []core.Symbol) core.ChangeSet {
	oldByID := make(map[string]core.Symbol, len(old))
	for _, s := range old {
		oldByID[s.ID] = s
	}
	newByID := make(map[string]core.Symbol, len(new))
	for _, s := range new {
		newByID[s.ID] = s
	}

	cs := core.ChangeSet{FilePath: NormalizePath(filePath), Language: lang}

	for id, s := range newByID {
		prev, ok := oldByID[id]
		switch {
		case !ok:
			cs.Added = append(cs.Added, s)
		case prev.ContentHash != s.ContentHash:
			cs.Updated = append(cs.Updated, s)
		}
	}
	for id, s := range oldByID {
		if _, ok := newByID[id]; !ok {
			cs.Removed = append(cs.Removed, s)
		}
	}

	sortByID(cs.Added)
	sortByID(cs.Updated)
	sortByID(cs.Removed)
	return cs
}

func sortByID(syms []core.Symbol) {
	sort.Slice(syms, func(i, j int) bool { return syms[i].ID < syms[j].ID })
}
