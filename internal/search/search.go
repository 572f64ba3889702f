// Package search implements the federated search and suggestion engine: one
// query surface over the five entity kinds of a tenant, backed directly by
// the live transactional store.
package search

import (
	"strings"
	"time"
)

// EntityType identifies the kind of entity in a search result.
type EntityType string

const (
	TypePatient     EntityType = "patient"
	TypeSession     EntityType = "session"
	TypeInterview   EntityType = "interview"
	TypeTestAttempt EntityType = "test_attempt"
	TypeAttachment  EntityType = "attachment"
)

// AllTypes returns every searchable entity type in canonical order.
func AllTypes() []EntityType {
	return []EntityType{TypePatient, TypeSession, TypeInterview, TypeTestAttempt, TypeAttachment}
}

// ParseType maps a caller-supplied type token to an EntityType.
func ParseType(raw string) (EntityType, bool) {
	switch t := EntityType(strings.ToLower(strings.TrimSpace(raw))); t {
	case TypePatient, TypeSession, TypeInterview, TypeTestAttempt, TypeAttachment:
		return t, true
	default:
		return "", false
	}
}

// Query describes one search request. FreeText, LabelCodes and Hashtags are
// derived exclusively from tokenizing the raw query string.
type Query struct {
	TenantID   string
	FreeText   string
	LabelCodes []string
	Hashtags   []string
	Types      []EntityType // empty = all
	DateFrom   *time.Time   // inclusive
	DateTo     *time.Time   // exclusive
	Page       int          // 1-based
	PageSize   int
}

// ResultItem is a single search hit returned to the caller.
type ResultItem struct {
	Type      EntityType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Snippet   string     `json:"snippet,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	ParentID  string     `json:"parentId,omitempty"`
	URL       string     `json:"url,omitempty"`
}

// Page is the envelope returned by the search endpoint.
type Page struct {
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	Total      int          `json:"total"`
	Items      []ResultItem `json:"items"`
	DurationMs int64        `json:"durationMs"`
}

// LabelSuggestion is one label offered by the type-ahead path.
type LabelSuggestion struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	ColorHex string `json:"colorHex"`
}

// EntitySuggestion is one entity title offered by the type-ahead path.
type EntitySuggestion struct {
	Type  EntityType `json:"type"`
	ID    string     `json:"id"`
	Title string     `json:"title"`
}

// Suggestions groups the three independent suggestion categories.
type Suggestions struct {
	Hashtags   []string           `json:"hashtags"`
	Labels     []LabelSuggestion  `json:"labels"`
	Entities   []EntitySuggestion `json:"entities"`
	DurationMs int64              `json:"durationMs"`
}
