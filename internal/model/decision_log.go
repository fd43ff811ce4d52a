package model

import "time"

// DecisionType labels what an LLM call was used for.
type DecisionType string

// Decision type constants.
const (
	DecisionParsing        DecisionType = "parsing"
	DecisionCategorization DecisionType = "categorization"
)

// DecisionLog is an immutable audit record of one LLM call. Entries double as
// the LLM response cache: the CacheKey is a content hash of the transaction
// fields that went into the prompt, and a later transaction with the same key
// reuses the logged decision instead of calling out again.
type DecisionLog struct {
	CreatedAt        time.Time
	EmailID          *int64
	TransactionID    *int64
	TokensPrompt     *int
	TokensCompletion *int
	Metadata         map[string]any
	DecisionType     DecisionType
	ModelName        string
	Prompt           string
	Response         string
	CacheKey         string
	ID               int64
}
