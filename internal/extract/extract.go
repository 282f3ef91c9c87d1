// Package extract finds biomedical entity mentions in chunk text.
//
// Recognition is dictionary-first: an Aho-Corasick automaton built from every
// catalog name and alias finds candidate terms, then word-boundary and
// ambiguity checks filter them. Mutations are matched by notation pattern and
// normalized through the HGVS normalizer; a mention whose normalization fails
// is kept with an empty normalized id rather than dropped.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"

	"github.com/oncoscout/oncoscout/internal/catalog"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// ExtractorName tags mentions produced by this package.
const ExtractorName = "dictionary-v1"

// minTermLen drops dictionary terms too short to mean anything in prose.
const minTermLen = 3

// ambiguityWindow is how many characters around an ambiguous symbol are
// searched for biomedical context before the mention is emitted.
const ambiguityWindow = 200

// Mention confidences by how the match was made. An unambiguous dictionary
// hit is certain before any disambiguation discount applies.
const (
	confidenceExact      = 1.0
	confidenceAmbiguous  = 0.70
	confidenceMutation   = 0.85
	confidenceUnresolved = 0.50
)

var (
	// G12D, V600E, R213* with word boundaries.
	reMutationShort = regexp.MustCompile(`\b[A-Z]\d{1,4}[A-Z*]\b`)
	// p.Gly12Asp, p.G12D
	reMutationHGVS = regexp.MustCompile(`\bp\.(?:[A-Z][a-z]{2}|[A-Z])\d{1,4}(?:[A-Z][a-z]{2}|[A-Z*])\b`)
	// c.35G>A
	reMutationCoding = regexp.MustCompile(`\bc\.\d+[ACGT]>[ACGT]\b`)

	// Cue words that justify emitting an ambiguous gene symbol.
	reBioContext = regexp.MustCompile(`(?i)\b(gene|protein|mutation|mutant|expression|knockout|knockdown|kinase|enzyme|mrna|transcript|phosphorylation|inhibitor|oncogene|signaling|pathway|allele|variant)\b`)
)

type term struct {
	text      string
	entity    *catalog.Entity
	ambiguous bool
}

// Extractor recognizes catalog entities and mutation notations in text.
type Extractor struct {
	matcher *ahocorasick.Matcher
	terms   []term
}

// dictionaryTypes are the entity types recognized by the automaton. Mutations
// go through the notation patterns instead.
var dictionaryTypes = []catalog.EntityType{
	catalog.TypeGene,
	catalog.TypeCancerType,
	catalog.TypeCompound,
	catalog.TypePathway,
	catalog.TypeCellLine,
}

// New builds an extractor over the catalog's current contents. Rebuild after
// registering new entities.
func New(c *catalog.Catalog) *Extractor {
	var terms []term
	seen := make(map[string]bool)

	for _, typ := range dictionaryTypes {
		for _, e := range c.All(typ) {
			for _, text := range append([]string{e.Name}, e.Aliases...) {
				lower := strings.ToLower(strings.TrimSpace(text))
				if len(lower) < minTermLen || seen[lower] {
					continue
				}
				seen[lower] = true
				terms = append(terms, term{
					text:      lower,
					entity:    e,
					ambiguous: typ == catalog.TypeGene && catalog.IsAmbiguousSymbol(text),
				})
			}
		}
	}

	dict := make([][]byte, len(terms))
	for i, t := range terms {
		dict[i] = []byte(t.text)
	}
	return &Extractor{matcher: ahocorasick.NewMatcher(dict), terms: terms}
}

// ExtractChunk returns every mention found in the chunk, ordered by offset.
// Overlapping dictionary matches keep the longest term.
func (x *Extractor) ExtractChunk(chunk *storage.Chunk) []storage.Mention {
	content := chunk.Content
	lower := strings.ToLower(content)

	var spans []span
	for _, idx := range x.matcher.Match([]byte(lower)) {
		t := x.terms[idx]
		for _, pos := range occurrences(lower, t.text) {
			if !wordBounded(content, pos, pos+len(t.text)) {
				continue
			}
			if t.ambiguous && !hasBioContext(content, pos, pos+len(t.text)) {
				continue
			}
			spans = append(spans, span{start: pos, end: pos + len(t.text), term: t})
		}
	}
	spans = dropOverlaps(spans)

	mentions := make([]storage.Mention, 0, len(spans))
	for _, s := range spans {
		conf := confidenceExact
		if s.term.ambiguous {
			conf = confidenceAmbiguous
		}
		mentions = append(mentions, storage.Mention{
			ID:                  uuid.New(),
			ChunkID:             chunk.ID,
			MentionText:         content[s.start:s.end],
			StartOffset:         s.start,
			EndOffset:           s.end,
			EntityType:          string(s.term.entity.Type),
			NormalizedID:        s.term.entity.CanonicalID,
			NormalizationSource: normalizationSource(s.term.entity.Type),
			Confidence:          conf,
			Extractor:           ExtractorName,
		})
	}

	mentions = append(mentions, x.extractMutations(chunk, content, spans)...)
	sortMentions(mentions)
	return mentions
}

type span struct {
	start, end int
	term       term
}

// extractMutations runs the notation patterns. Matches inside a dictionary
// span are skipped so alias text is never double-reported.
func (x *Extractor) extractMutations(chunk *storage.Chunk, content string, taken []span) []storage.Mention {
	var mentions []storage.Mention
	emit := func(loc []int) {
		for _, s := range taken {
			if loc[0] < s.end && s.start < loc[1] {
				return
			}
		}
		text := content[loc[0]:loc[1]]
		m := storage.Mention{
			ID:          uuid.New(),
			ChunkID:     chunk.ID,
			MentionText: text,
			StartOffset: loc[0],
			EndOffset:   loc[1],
			EntityType:  string(catalog.TypeMutation),
			Extractor:   ExtractorName,
		}
		if norm := catalog.NormalizeMutation(text, ""); norm != nil {
			m.NormalizedID = norm.HGVSProtein
			m.NormalizationSource = "hgvs"
			m.Confidence = confidenceMutation
		} else {
			// Coding-DNA and other unnormalized notations stay raw.
			m.Confidence = confidenceUnresolved
		}
		mentions = append(mentions, m)
	}

	for _, re := range []*regexp.Regexp{reMutationHGVS, reMutationShort, reMutationCoding} {
		for _, loc := range re.FindAllStringIndex(content, -1) {
			dup := false
			for _, m := range mentions {
				if loc[0] < m.EndOffset && m.StartOffset < loc[1] {
					dup = true
					break
				}
			}
			if !dup {
				emit(loc)
			}
		}
	}
	return mentions
}

// occurrences returns every start offset of needle in haystack.
func occurrences(haystack, needle string) []int {
	var out []int
	for from := 0; ; {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			return out
		}
		out = append(out, from+i)
		from += i + 1
	}
}

// wordBounded reports whether content[start:end] is not embedded in a larger
// alphanumeric token.
func wordBounded(content string, start, end int) bool {
	if start > 0 {
		r := rune(content[start-1])
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}
	if end < len(content) {
		r := rune(content[end])
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

// hasBioContext checks the surrounding window for biomedical cue words.
func hasBioContext(content string, start, end int) bool {
	lo := start - ambiguityWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + ambiguityWindow
	if hi > len(content) {
		hi = len(content)
	}
	return reBioContext.MatchString(content[lo:start]) || reBioContext.MatchString(content[end:hi])
}

// dropOverlaps keeps the longest span in any overlapping group, earlier span
// winning ties.
func dropOverlaps(spans []span) []span {
	if len(spans) < 2 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end-spans[i].start > spans[j].end-spans[j].start
	})
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start >= last.end {
			out = append(out, s)
			continue
		}
		if s.end-s.start > last.end-last.start {
			*last = s
		}
	}
	return out
}

func sortMentions(mentions []storage.Mention) {
	sort.Slice(mentions, func(i, j int) bool {
		return mentions[i].StartOffset < mentions[j].StartOffset
	})
}

func normalizationSource(typ catalog.EntityType) string {
	switch typ {
	case catalog.TypeGene:
		return "hgnc"
	case catalog.TypeCancerType:
		return "oncotree"
	case catalog.TypeCompound:
		return "chembl"
	default:
		return "catalog"
	}
}
