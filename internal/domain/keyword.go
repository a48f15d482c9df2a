package domain

// Keyword is a word or phrase comments are matched against. Its lifecycle is
// owned by the CRUD surface; the ingestion pipeline only reads active ones.
type Keyword struct {
	ID              int64  `json:"id"`
	Word            string `json:"word"`
	IsWholeWord     bool   `json:"is_whole_word"`
	IsCaseSensitive bool   `json:"is_case_sensitive"`
	Category        string `json:"category,omitempty"`
	Active          bool   `json:"active"`
}
