package model

import "time"

// Category is a spending category with a stable code used in LLM prompts and
// rule definitions.
type Category struct {
	CreatedAt   time.Time
	Code        string
	Name        string
	Description string
	ID          int64
	IsActive    bool
}

// Subcategory is an optional refinement of a category.
type Subcategory struct {
	CreatedAt  time.Time
	Name       string
	ID         int64
	CategoryID int64
	IsActive   bool
}
