package ingest

import (
	"github.com/Anansitrading/kijko/internal/secrets"
	"github.com/Anansitrading/kijko/internal/vectorstore"
)

// optimizeResult carries the counters from the optimization phase.
type optimizeResult struct {
	secretsRedacted int64
	tokensEstimated int64
}

// optimizeChunks runs chunk content through secret redaction (when the
// project opts in) and accumulates a token estimate. The estimate uses the
// usual four-characters-per-token heuristic.
func optimizeChunks(chunks []vectorstore.Chunk, redactor *secrets.Redactor, anonymize bool) optimizeResult {
	var res optimizeResult
	for i := range chunks {
		if anonymize && redactor != nil {
			out := redactor.Redact(chunks[i].Content)
			if out.Redacted() {
				chunks[i].Content = out.Content
				res.secretsRedacted += int64(len(out.Findings))
			}
		}
		res.tokensEstimated += int64(len(chunks[i].Content) / 4)
	}
	return res
}
