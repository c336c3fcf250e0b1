package index

import (
	"strings"
	"sync"
	"unicode"
)

// FulltextIndex tokenizes one UTF-8 string attribute and indexes each
// token (and, optionally, its substrings) in a posting list. Update is
// delete-then-insert because the old and new token sets may overlap
// arbitrarily; Remove only tombstones the reference, and Cleanup is what
// actually compacts tombstoned postings out, invoked every N cleanup-loop
// iterations (see the cleanup package).
type FulltextIndex struct {
	iid             uint64
	field           string
	minWordLength   int
	maxWordLength   int
	indexSubstrings bool

	mu        sync.RWMutex
	postings  map[string]map[DocRef]bool
	tombstone map[DocRef]bool
}

const defaultMaxWordLength = 40

// NewFulltextIndex builds a fulltext index over field.
func NewFulltextIndex(iid uint64, field string, minWordLength int, indexSubstrings bool) *FulltextIndex {
	return &FulltextIndex{
		iid:             iid,
		field:           field,
		minWordLength:   minWordLength,
		maxWordLength:   defaultMaxWordLength,
		indexSubstrings: indexSubstrings,
		postings:        make(map[string]map[DocRef]bool),
		tombstone:       make(map[DocRef]bool),
	}
}

func (f *FulltextIndex) IID() uint64 { return f.iid }

func (f *FulltextIndex) Describe() Description {
	return Description{
		ID: f.iid, Type: "fulltext", Unique: false, Fields: []string{f.field},
		MinWordLength: f.minWordLength, IndexSubstrings: f.indexSubstrings,
	}
}

func (f *FulltextIndex) tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		w := b.String()
		b.Reset()
		if len(w) < f.minWordLength || len(w) > f.maxWordLength {
			return
		}
		tokens = append(tokens, w)
	}
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			flush()
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	flush()

	if !f.indexSubstrings {
		return tokens
	}
	substrings := make([]string, 0, len(tokens)*2)
	substrings = append(substrings, tokens...)
	for _, tok := range tokens {
		for i := f.minWordLength; i < len(tok); i++ {
			substrings = append(substrings, tok[:i])
		}
	}
	return substrings
}

func (f *FulltextIndex) Insert(doc Document, ref DocRef) Result {
	raw, present := attr(doc, f.field)
	if !present {
		return warn(WarnAttributeMissing)
	}
	text, _ := raw.(string)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tombstone[ref] {
		// A removed ref's old postings are still present until Cleanup;
		// drop them before reviving it so they do not match again.
		for tok, refs := range f.postings {
			delete(refs, ref)
			if len(refs) == 0 {
				delete(f.postings, tok)
			}
		}
		delete(f.tombstone, ref)
	}
	for _, tok := range f.tokenize(text) {
		if f.postings[tok] == nil {
			f.postings[tok] = make(map[DocRef]bool)
		}
		f.postings[tok][ref] = true
	}
	return ok()
}

func (f *FulltextIndex) Update(newDoc, oldDoc Document, ref DocRef) Result {
	if raw, present := attr(oldDoc, f.field); present {
		text, _ := raw.(string)
		f.mu.Lock()
		for _, tok := range f.tokenize(text) {
			delete(f.postings[tok], ref)
			if len(f.postings[tok]) == 0 {
				delete(f.postings, tok)
			}
		}
		f.mu.Unlock()
	}
	return f.Insert(newDoc, ref)
}

// Remove tombstones ref; the postings themselves are dropped lazily by
// Cleanup so a burst of updates doesn't pay for a full postings scan
// every time.
func (f *FulltextIndex) Remove(doc Document, ref DocRef) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tombstone[ref] = true
	return ok()
}

// Cleanup compacts tombstoned refs out of every posting list.
func (f *FulltextIndex) Cleanup() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tombstone) == 0 {
		return ok()
	}
	for tok, refs := range f.postings {
		for ref := range f.tombstone {
			delete(refs, ref)
		}
		if len(refs) == 0 {
			delete(f.postings, tok)
		}
	}
	f.tombstone = make(map[DocRef]bool)
	return ok()
}

// Lookup returns every live ref whose token set contains term.
func (f *FulltextIndex) Lookup(term string) []DocRef {
	f.mu.RLock()
	defer f.mu.RUnlock()

	term = strings.ToLower(term)
	var out []DocRef
	for ref := range f.postings[term] {
		if !f.tombstone[ref] {
			out = append(out, ref)
		}
	}
	return out
}
