package domain

import "encoding/json"

// DocumentMeta holds optional attributes recovered during extraction.
type DocumentMeta struct {
	Title  string
	Author string
	Pages  int
	Type   string
}

// Document is a single source file loaded into the system.
// It is identified by its file name and is discarded after chunking.
type Document struct {
	Name string
	Path string
	Text string
	Meta DocumentMeta
}

// Chunk is an ordered, token-bounded segment of one document.
// Tokens is a whitespace word count, not a model tokenizer count.
type Chunk struct {
	Text   string
	Tokens int
	Index  int
	Source string
}

// ChunkMetadata is the structured payload attached to every indexed chunk.
type ChunkMetadata struct {
	Source     string
	ChunkIndex int
	Extra      map[string]any
}

// ChunkRecord pairs chunk text with its metadata ahead of upload.
type ChunkRecord struct {
	Text     string
	Metadata ChunkMetadata
}

// SearchResult is one ranked passage returned by similarity search.
type SearchResult struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}

// CollectionInfo describes the state of a vector collection.
type CollectionInfo struct {
	Name           string `json:"name"`
	PointsCount    int    `json:"points_count"`
	VectorSize     int    `json:"vector_size"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

const (
	payloadText       = "text"
	payloadSource     = "source"
	payloadChunkIndex = "chunk_index"
)

// Payload flattens the metadata and chunk text into a single point payload.
func (m ChunkMetadata) Payload(text string) map[string]any {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	out[payloadSource] = m.Source
	out[payloadChunkIndex] = m.ChunkIndex
	out[payloadText] = text
	return out
}

// MetadataFromPayload splits a stored payload back into chunk text and metadata.
// Any field other than text, source and chunk_index ends up in Extra.
func MetadataFromPayload(payload map[string]any) (string, ChunkMetadata) {
	var meta ChunkMetadata
	text, _ := payload[payloadText].(string)
	for k, v := range payload {
		switch k {
		case payloadText:
		case payloadSource:
			meta.Source, _ = v.(string)
		case payloadChunkIndex:
			meta.ChunkIndex = toInt(v)
		default:
			if meta.Extra == nil {
				meta.Extra = make(map[string]any)
			}
			meta.Extra[k] = v
		}
	}
	return text, meta
}

// MarshalJSON renders the metadata as the flat object stored in the payload.
func (m ChunkMetadata) MarshalJSON() ([]byte, error) {
	out := m.Payload("")
	delete(out, payloadText)
	return json.Marshal(out)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
