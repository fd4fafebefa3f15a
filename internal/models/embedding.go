package models

// Metadata is stored as jsonb next to every record.
type Metadata struct {
	Source string `json:"source"`
}

// Document is the raw content of one file in the data folder.
type Document struct {
	Content  string
	Metadata Metadata
}

// Chunk represents a paragraph of a document with the parent's metadata
type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Record is one row of the knowledge base table.
type Record struct {
	Content   string
	Metadata  Metadata
	Embedding []float32
}

// Match is a row returned by the similarity search. Similarity is zero when
// the backend does not report it.
type Match struct {
	Content    string
	Metadata   Metadata
	Similarity float64
}

// SearchRequest is the /search body. Query is nil when the field is absent.
type SearchRequest struct {
	Query *string `json:"query"`
}

type SearchResponse struct {
	Context string   `json:"context"`
	Sources []string `json:"sources"`
}
