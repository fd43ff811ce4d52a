package model

import "time"

// MatchField selects which transaction text a rule is tested against.
type MatchField string

// Match field constants.
const (
	MatchFieldMerchant    MatchField = "merchant"
	MatchFieldDescription MatchField = "description"
	MatchFieldCardLast4   MatchField = "card_last4"
	MatchFieldAnyText     MatchField = "any"
)

// MatchType selects the comparator applied to the match field.
type MatchType string

// Match type constants.
const (
	MatchContains   MatchType = "contains"
	MatchStartsWith MatchType = "starts_with"
	MatchEndsWith   MatchType = "ends_with"
	MatchExact      MatchType = "exact"
	MatchRegex      MatchType = "regex"
	MatchAlways     MatchType = "always"
)

// RuleOrigin records how a rule came to exist.
type RuleOrigin string

// Rule origin constants.
const (
	OriginManual    RuleOrigin = "manual"
	OriginPromoted  RuleOrigin = "promoted"
	OriginSuggested RuleOrigin = "suggested"
	OriginSeeded    RuleOrigin = "seeded"
)

// CategoryRule is a deterministic categorization rule. Rules are evaluated in
// ascending Priority order (ties broken by MatchValue) and the first match
// wins. Matches from the rule engine carry a fixed confidence.
type CategoryRule struct {
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SubcategoryID *int64
	MatchValue    string
	CardLast4     string
	Notes         string
	MatchField    MatchField
	MatchType     MatchType
	Origin        RuleOrigin
	ID            int64
	CategoryID    int64
	Priority      int
	IsActive      bool
}
