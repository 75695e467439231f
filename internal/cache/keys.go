package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func AnalysisStatusKey(analysisID uuid.UUID) string {
	return fmt.Sprintf("analysis:%s", analysisID)
}

func AnalysisResultKey(analysisID uuid.UUID) string {
	return fmt.Sprintf("analysis:result:%s", analysisID)
}

func SearchResultKey(queryHash string) string {
	return fmt.Sprintf("search:%s", queryHash)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
