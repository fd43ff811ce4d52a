package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParseStatus tracks the parsing outcome recorded on a transaction.
type ParseStatus string

// Parse status constants.
const (
	ParsePending ParseStatus = "pending"
	ParseParsed  ParseStatus = "parsed"
	ParseFailed  ParseStatus = "failed"
)

// Transaction is a bank transaction extracted from one notification email.
// The (EmailID, ReferenceID) pair is unique: re-parsing the same email with
// the same bank reference updates the existing row instead of duplicating it.
type Transaction struct {
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Date               time.Time
	ParseConfidence    *float64
	CategoryConfidence *float64
	CardID             *int64
	CategoryID         *int64
	SubcategoryID      *int64
	Metadata           map[string]any
	MerchantName       string
	Description        string
	Currency           string
	CardLast4          string
	ReferenceID        string
	CategorySource     string
	ParseStatus        ParseStatus
	Amount             decimal.Decimal
	ID                 int64
	EmailID            int64
	NeedsReview        bool
}

// CategorizationResult is the outcome of one categorization attempt, either
// from the rule engine (Source "rule:<id>") or the LLM fallback
// (Source "llm:<model>" or "llm-cache:<model>").
type CategorizationResult struct {
	RuleID        *int64
	SubcategoryID *int64
	CategoryID    int64
	Confidence    float64
	Source        string
}

// Card is a payment card known to the tracker, matched to transactions by
// its last four digits.
type Card struct {
	CreatedAt time.Time
	Label     string
	Last4     string
	BankName  string
	Network   string
	ID        int64
	IsActive  bool
}
