package model

// ================ Config ================

// GateModelConfig drives the safety detector and intent router model.
type GateModelConfig struct {
	Model       string  `envconfig:"GATE_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"GATE_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"GATE_TEMPERATURE" default:"0.0"`
}

// AnswerModelConfig drives the recommendation model. FallbackModel, when set,
// is tried exactly once per round after the primary fails.
type AnswerModelConfig struct {
	Model         string  `envconfig:"CHAT_MODEL" default:"gemini-2.5-flash"`
	FallbackModel string  `envconfig:"CHAT_FALLBACK_MODEL"`
	MaxTokens     int     `envconfig:"CHAT_MAX_TOKENS" default:"2000"`
	Temperature   float32 `envconfig:"CHAT_TEMPERATURE" default:"0.2"`
}

// RetrievalConfig bounds the retrieval stage.
type RetrievalConfig struct {
	TopK             int `envconfig:"RETRIEVAL_TOP_K" default:"7"`
	MaxTerms         int `envconfig:"EXPANSION_MAX_TERMS" default:"10"`
	SynonymsPerTheme int `envconfig:"THEME_SYNONYMS_PER_THEME" default:"3"`
}

// CatalogConfig locates the catalog files.
type CatalogConfig struct {
	BooksPath    string `envconfig:"BOOKS_PATH" default:"data/books.json"`
	ExtendedPath string `envconfig:"BOOKS_EXT_PATH" default:"data/books_ext.json"`
}

// AuditConfig drives the optional per-turn audit trail.
type AuditConfig struct {
	TTL string `envconfig:"AUDIT_TTL" default:"24h"`
}
