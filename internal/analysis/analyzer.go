package analysis

import "context"

// Analyzer labels a comment with a sentiment.
type Analyzer interface {
	// Analyze returns one of the domain.Sentiment* labels for text.
	Analyze(ctx context.Context, text string) (string, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, text string) (string, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}
