package models

const (
	// ParagraphRegex separates paragraphs: a newline, optional whitespace
	// (Unicode spaces included), another newline.
	ParagraphRegex   = `\n[\s\v\p{Z}\x{85}\x{1c}-\x{1f}]*\n`
	ContextSeparator = "\n\n---\n\n"

	DefaultTable          = "health_knowledge_base"
	DefaultMatchFunction  = "match_health_documents"
	DefaultDimension      = 384
	DefaultMatchThreshold = 0.70
	DefaultMatchCount     = 3
	DefaultBatchSize      = 100

	HealthStatus = "API is running."
)
