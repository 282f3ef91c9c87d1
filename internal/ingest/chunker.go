package ingest

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/oncoscout/oncoscout/internal/storage"
)

// Chunk window constants, in tokens.
const (
	ChunkWindow  = 512
	ChunkOverlap = 64
)

// chunkEncoding is the tokenizer used for window boundaries. Window sizing
// only needs a stable token count, not the embedding model's own vocabulary.
const chunkEncoding = "cl100k_base"

// Section types.
const (
	SectionAbstract      = "abstract"
	SectionIntroduction  = "introduction"
	SectionMethods       = "methods"
	SectionResults       = "results"
	SectionDiscussion    = "discussion"
	SectionConclusion    = "conclusion"
	SectionFigureCaption = "figure_caption"
	SectionTable         = "table"
	SectionOther         = "other"
)

// Section is one logical division of a parsed document.
type Section struct {
	Type    string
	Heading string
	Text    string
	Page    *int64
}

// Document is the parsed body of a paper, ready for chunking.
type Document struct {
	Abstract string
	Sections []Section
	Captions []string
}

// Chunker splits documents into token windows. The abstract and each figure
// caption become single chunks regardless of length; section bodies use a
// sliding window with overlap.
type Chunker struct {
	enc     *tiktoken.Tiktoken
	window  int
	overlap int
}

// NewChunker creates a chunker with the default window and overlap.
func NewChunker() (*Chunker, error) {
	enc, err := tiktoken.GetEncoding(chunkEncoding)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}
	return &Chunker{enc: enc, window: ChunkWindow, overlap: ChunkOverlap}, nil
}

// CountTokens returns the token length of text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Chunk splits a document into ordered chunks. The returned chunks carry no
// paper id; the caller assigns it before insert.
func (c *Chunker) Chunk(doc *Document) []storage.Chunk {
	var out []storage.Chunk
	next := 0

	add := func(sectionType, heading, text string, page *int64) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		out = append(out, storage.Chunk{
			ChunkIndex:     next,
			SectionType:    sectionType,
			SectionHeading: heading,
			Content:        text,
			TokenCount:     c.CountTokens(text),
			PageNumber:     page,
		})
		next++
	}

	add(SectionAbstract, "", doc.Abstract, nil)

	for _, sec := range doc.Sections {
		for _, window := range c.slide(sec.Text) {
			add(sec.Type, sec.Heading, window, sec.Page)
		}
	}

	for _, caption := range doc.Captions {
		add(SectionFigureCaption, "", caption, nil)
	}

	return out
}

// slide splits text into overlapping token windows.
func (c *Chunker) slide(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= c.window {
		return []string{text}
	}

	step := c.window - c.overlap
	var windows []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.window
		if end > len(tokens) {
			end = len(tokens)
		}
		windows = append(windows, strings.TrimSpace(c.enc.Decode(tokens[start:end])))
		if end == len(tokens) {
			break
		}
	}
	return windows
}
