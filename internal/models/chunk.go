package models

// ChunkKind distinguishes the two retrieval tiers.
type ChunkKind string

const (
	// KindCode is a raw overlapping window of a source file.
	KindCode ChunkKind = "code"
	// KindSummary is a one-paragraph natural-language digest of a file.
	KindSummary ChunkKind = "summary"
)

// Chunk is a bounded span of text derived from one repository file.
type Chunk struct {
	Text     string    `json:"text"`
	FilePath string    `json:"file_path"`
	Kind     ChunkKind `json:"kind"`
}

// IndexedChunk is a chunk persisted with its embedding, owned by a session.
// Write-once; deleted with the session, never mutated.
type IndexedChunk struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	FilePath  string    `json:"file_path"`
	Kind      ChunkKind `json:"kind"`
	Embedding []float32 `json:"-"`
}

// RankedChunk is an IndexedChunk with its similarity to a query embedding.
type RankedChunk struct {
	IndexedChunk
	Score float64 `json:"score"`
}
