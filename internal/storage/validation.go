package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jpvargas/gastotrack/internal/model"
)

// Validation errors.
var (
	ErrNilContext    = errors.New("context cannot be nil")
	ErrEmptyString   = errors.New("string parameter cannot be empty")
	ErrNilParameter  = errors.New("parameter cannot be nil")
	ErrInvalidEmail  = errors.New("invalid email")
	ErrInvalidTxn    = errors.New("invalid transaction")
	ErrInvalidRule   = errors.New("invalid rule")
	ErrInvalidRecord = errors.New("invalid record")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateEmail(email *model.RawEmail) error {
	if email == nil {
		return fmt.Errorf("%w: email", ErrNilParameter)
	}
	if email.Provider == "" {
		return fmt.Errorf("%w: missing provider", ErrInvalidEmail)
	}
	if email.MessageID == "" {
		return fmt.Errorf("%w: missing message ID", ErrInvalidEmail)
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.EmailID == 0 {
		return fmt.Errorf("%w: missing email ID", ErrInvalidTxn)
	}
	if txn.ReferenceID == "" {
		return fmt.Errorf("%w: missing reference ID", ErrInvalidTxn)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTxn)
	}
	return nil
}

func validateRule(rule *model.CategoryRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if rule.CategoryID == 0 {
		return fmt.Errorf("%w: missing category ID", ErrInvalidRule)
	}
	if rule.MatchType != model.MatchAlways && strings.TrimSpace(rule.MatchValue) == "" {
		return fmt.Errorf("%w: missing match value", ErrInvalidRule)
	}
	switch rule.MatchField {
	case model.MatchFieldMerchant, model.MatchFieldDescription, model.MatchFieldCardLast4, model.MatchFieldAnyText:
	default:
		return fmt.Errorf("%w: unknown match field %q", ErrInvalidRule, rule.MatchField)
	}
	switch rule.MatchType {
	case model.MatchContains, model.MatchStartsWith, model.MatchEndsWith,
		model.MatchExact, model.MatchRegex, model.MatchAlways:
	default:
		return fmt.Errorf("%w: unknown match type %q", ErrInvalidRule, rule.MatchType)
	}
	return nil
}

func validateDecision(d *model.DecisionLog) error {
	if d == nil {
		return fmt.Errorf("%w: decision", ErrNilParameter)
	}
	if d.DecisionType == "" {
		return fmt.Errorf("%w: missing decision type", ErrInvalidRecord)
	}
	if d.ModelName == "" {
		return fmt.Errorf("%w: missing model name", ErrInvalidRecord)
	}
	return nil
}
