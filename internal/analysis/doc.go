// Package analysis defines the sentiment analyzer boundary used by the
// ingestion handlers. The analyzer shipped here is a placeholder lexicon
// scorer; a model-backed implementation can replace it behind the same
// interface without touching the pipeline.
package analysis
