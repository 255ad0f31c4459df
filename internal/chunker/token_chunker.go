package chunker

import (
	"regexp"
	"sort"
	"strings"

	"unihelp/internal/domain"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

var (
	paragraphSplitter = regexp.MustCompile(`\n\s*\n`)
	sentenceSplitter  = regexp.MustCompile(`[.!?]+\s+`)
)

// TokenChunker splits text into chunks of at most size whitespace tokens,
// preferring paragraph boundaries and falling back to sentences for
// paragraphs that do not fit on their own. Consecutive chunks share the last
// overlap tokens of the previous chunk.
//
// Tokens are counted by whitespace splitting, which only approximates the
// tokenizer of the embedding model.
type TokenChunker struct {
	size    int
	overlap int
}

func NewTokenChunker(size, overlap int) *TokenChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &TokenChunker{size: size, overlap: overlap}
}

func (c *TokenChunker) Size() int    { return c.size }
func (c *TokenChunker) Overlap() int { return c.overlap }

// Chunk splits a single text. Index is set to the chunk position; Source is
// left empty.
func (c *TokenChunker) Chunk(text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		chunks []domain.Chunk
		buf    string
	)
	seal := func() {
		if strings.TrimSpace(buf) == "" {
			buf = ""
			return
		}
		chunks = append(chunks, domain.Chunk{
			Text:   buf,
			Tokens: countTokens(buf),
			Index:  len(chunks),
		})
	}
	// add appends piece to the buffer, sealing first when it would overflow.
	add := func(piece, sep string) {
		if buf != "" && countTokens(buf)+countTokens(piece) > c.size {
			seal()
			buf = joinNonEmpty(c.tail(buf), piece, sep)
			return
		}
		buf = joinNonEmpty(buf, piece, sep)
	}

	for _, para := range splitParagraphs(text) {
		if countTokens(para) <= c.size {
			add(para, "\n\n")
			continue
		}
		for _, sentence := range splitSentences(para) {
			add(sentence, " ")
		}
	}
	seal()
	return chunks
}

// ChunkDocuments chunks every document in name order and tags each chunk
// with its source name and position.
func (c *TokenChunker) ChunkDocuments(docs map[string]string) []domain.ChunkRecord {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	var records []domain.ChunkRecord
	for _, name := range names {
		for _, ch := range c.Chunk(docs[name]) {
			records = append(records, domain.ChunkRecord{
				Text:     ch.Text,
				Metadata: domain.ChunkMetadata{Source: name, ChunkIndex: ch.Index},
			})
		}
	}
	return records
}

// Split turns records into the parallel slices the vector store expects.
func Split(records []domain.ChunkRecord) ([]string, []domain.ChunkMetadata) {
	texts := make([]string, len(records))
	metas := make([]domain.ChunkMetadata, len(records))
	for i, r := range records {
		texts[i] = r.Text
		metas[i] = r.Metadata
	}
	return texts, metas
}

// tail returns the last overlap tokens of a sealed chunk.
func (c *TokenChunker) tail(chunk string) string {
	if c.overlap == 0 {
		return ""
	}
	words := strings.Fields(chunk)
	if len(words) > c.overlap {
		words = words[len(words)-c.overlap:]
	}
	return strings.Join(words, " ")
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphSplitter.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences cuts after runs of terminal punctuation followed by
// whitespace. The punctuation stays with its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceSplitter.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func countTokens(s string) int {
	return len(strings.Fields(s))
}

func joinNonEmpty(a, b, sep string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + sep + b
}
