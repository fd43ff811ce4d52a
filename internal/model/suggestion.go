package model

import "time"

// SuggestionStatus is the lifecycle state of a rule suggestion.
type SuggestionStatus string

// Suggestion status constants.
const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// RuleSuggestion proposes a new category rule derived from a manual
// correction. At most one pending suggestion exists per
// (merchant, category, card) combination.
type RuleSuggestion struct {
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TransactionID *int64
	CorrectionID  *int64
	MerchantName  string
	CardLast4     string
	Reason        string
	Status        SuggestionStatus
	ID            int64
	CategoryID    int64
}

// TransactionCorrection is an audit record of a manual edit to a transaction.
// Corrections feed rule suggestions so repeated fixes can be promoted into
// deterministic rules.
type TransactionCorrection struct {
	CreatedAt             time.Time
	PreviousCategoryID    *int64
	NewCategoryID         *int64
	PreviousSubcategoryID *int64
	NewSubcategoryID      *int64
	ChangedFields         []string
	PreviousMerchantName  string
	NewMerchantName       string
	ID                    int64
	TransactionID         int64
}
