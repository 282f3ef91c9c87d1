package extract

import (
	"testing"

	"github.com/google/uuid"

	"github.com/oncoscout/oncoscout/internal/catalog"
	"github.com/oncoscout/oncoscout/internal/storage"
)

func newTestExtractor() *Extractor {
	c := catalog.New()
	catalog.LoadHGNC(c)
	catalog.LoadOncoTree(c, catalog.DefaultOncoTree())
	return New(c)
}

func chunkOf(text string) *storage.Chunk {
	return &storage.Chunk{ID: uuid.New(), Content: text}
}

func mentionsByType(mentions []storage.Mention) map[string][]storage.Mention {
	out := make(map[string][]storage.Mention)
	for _, m := range mentions {
		out[m.EntityType] = append(out[m.EntityType], m)
	}
	return out
}

func TestExtractGeneMention(t *testing.T) {
	x := newTestExtractor()
	mentions := x.ExtractChunk(chunkOf("Knockout of KRAS reduced viability."))

	genes := mentionsByType(mentions)["gene"]
	if len(genes) != 1 {
		t.Fatalf("gene mentions = %d, want 1", len(genes))
	}
	g := genes[0]
	if g.MentionText != "KRAS" {
		t.Errorf("text = %q", g.MentionText)
	}
	if g.NormalizedID != "HGNC:6407" {
		t.Errorf("normalized id = %q", g.NormalizedID)
	}
	if g.NormalizationSource != "hgnc" {
		t.Errorf("source = %q", g.NormalizationSource)
	}
	if got := "Knockout of KRAS reduced viability."[g.StartOffset:g.EndOffset]; got != "KRAS" {
		t.Errorf("offsets select %q", got)
	}
	// An unambiguous dictionary hit carries full confidence.
	if g.Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0", g.Confidence)
	}
}

func TestExtractAliasResolvesToSameGene(t *testing.T) {
	x := newTestExtractor()
	mentions := x.ExtractChunk(chunkOf("SHP2 phosphatase activity was required."))

	genes := mentionsByType(mentions)["gene"]
	if len(genes) != 1 || genes[0].NormalizedID != "HGNC:9829" {
		t.Fatalf("alias mention = %+v", genes)
	}
}

func TestExtractWordBoundary(t *testing.T) {
	x := newTestExtractor()
	// "KRAS" embedded in a larger token is not a mention.
	mentions := x.ExtractChunk(chunkOf("The pKRAS4B construct was transfected."))
	if genes := mentionsByType(mentions)["gene"]; len(genes) != 0 {
		t.Errorf("embedded token produced mentions: %+v", genes)
	}
}

func TestExtractAmbiguousSymbolNeedsContext(t *testing.T) {
	x := newTestExtractor()

	// Plain English use of a colliding symbol: no mention.
	none := x.ExtractChunk(chunkOf("The SET of samples was placed on MAX speed."))
	if genes := mentionsByType(none)["gene"]; len(genes) != 0 {
		t.Errorf("ambiguous symbols emitted without context: %+v", genes)
	}

	// With biomedical context in the window, the mention is emitted at
	// reduced confidence.
	some := x.ExtractChunk(chunkOf("SET overexpression inhibits the PP2A pathway in leukemia."))
	genes := mentionsByType(some)["gene"]
	if len(genes) != 1 {
		t.Fatalf("gene mentions = %+v", genes)
	}
	if genes[0].Confidence >= confidenceExact {
		t.Errorf("ambiguous confidence = %f, want below %f", genes[0].Confidence, confidenceExact)
	}
}

func TestExtractCancerTypeLongestMatch(t *testing.T) {
	x := newTestExtractor()
	mentions := x.ExtractChunk(chunkOf("Samples came from pancreatic ductal adenocarcinoma resections."))

	cancers := mentionsByType(mentions)["cancer_type"]
	if len(cancers) != 1 {
		t.Fatalf("cancer mentions = %+v", cancers)
	}
	if cancers[0].MentionText != "pancreatic ductal adenocarcinoma" {
		t.Errorf("kept %q, want the longest overlapping term", cancers[0].MentionText)
	}
	if cancers[0].NormalizedID != "PAAD" {
		t.Errorf("normalized id = %q", cancers[0].NormalizedID)
	}
}

func TestExtractMutationNormalized(t *testing.T) {
	x := newTestExtractor()
	mentions := x.ExtractChunk(chunkOf("KRAS G12D and BRAF p.Val600Glu co-occurred."))

	muts := mentionsByType(mentions)["mutation"]
	if len(muts) != 2 {
		t.Fatalf("mutation mentions = %+v", muts)
	}
	byText := make(map[string]storage.Mention)
	for _, m := range muts {
		byText[m.MentionText] = m
	}
	if m := byText["G12D"]; m.NormalizedID != "p.Gly12Asp" || m.NormalizationSource != "hgvs" {
		t.Errorf("G12D normalized to %q via %q", m.NormalizedID, m.NormalizationSource)
	}
	if m := byText["p.Val600Glu"]; m.NormalizedID != "p.Val600Glu" {
		t.Errorf("HGVS mention normalized to %q", m.NormalizedID)
	}
}

func TestExtractUnnormalizedMutationKept(t *testing.T) {
	x := newTestExtractor()
	mentions := x.ExtractChunk(chunkOf("The c.35G>A substitution was confirmed by sequencing."))

	muts := mentionsByType(mentions)["mutation"]
	if len(muts) != 1 {
		t.Fatalf("mutation mentions = %+v", muts)
	}
	m := muts[0]
	if m.MentionText != "c.35G>A" {
		t.Errorf("text = %q", m.MentionText)
	}
	if m.NormalizedID != "" {
		t.Errorf("coding notation should stay unnormalized, got %q", m.NormalizedID)
	}
	if m.Confidence != confidenceUnresolved {
		t.Errorf("confidence = %f", m.Confidence)
	}
}

func TestExtractMentionsSortedByOffset(t *testing.T) {
	x := newTestExtractor()
	mentions := x.ExtractChunk(chunkOf("EGFR and KRAS G12C in lung adenocarcinoma."))

	if len(mentions) < 3 {
		t.Fatalf("mentions = %+v", mentions)
	}
	for i := 1; i < len(mentions); i++ {
		if mentions[i].StartOffset < mentions[i-1].StartOffset {
			t.Errorf("mentions out of order at %d: %+v", i, mentions)
		}
	}
}

func TestExtractEmptyChunk(t *testing.T) {
	x := newTestExtractor()
	if mentions := x.ExtractChunk(chunkOf("")); len(mentions) != 0 {
		t.Errorf("mentions from empty chunk: %+v", mentions)
	}
}
