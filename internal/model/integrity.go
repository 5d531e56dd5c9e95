package model

import (
	"fmt"
	"time"
)

// IntegrityKind is the fixed vocabulary of integrity events.
type IntegrityKind string

const (
	IntegrityVisibilityLoss IntegrityKind = "visibility-loss"
	IntegrityCopyAttempt    IntegrityKind = "copy-attempt"
	IntegrityPasteAttempt   IntegrityKind = "paste-attempt"
	IntegrityCutAttempt     IntegrityKind = "cut-attempt"
)

// Valid reports whether k belongs to the vocabulary.
func (k IntegrityKind) Valid() bool {
	switch k {
	case IntegrityVisibilityLoss, IntegrityCopyAttempt, IntegrityPasteAttempt, IntegrityCutAttempt:
		return true
	}
	return false
}

// Describe renders the timestamped description stored in the log.
func (k IntegrityKind) Describe(at time.Time) string {
	ts := at.UTC().Format(time.RFC3339Nano)
	switch k {
	case IntegrityVisibilityLoss:
		return fmt.Sprintf("Tab/window change detected at %s", ts)
	case IntegrityCopyAttempt:
		return fmt.Sprintf("Copy attempt at %s", ts)
	case IntegrityPasteAttempt:
		return fmt.Sprintf("Paste attempt at %s", ts)
	case IntegrityCutAttempt:
		return fmt.Sprintf("Cut attempt at %s", ts)
	default:
		return fmt.Sprintf("Unknown event %q at %s", string(k), ts)
	}
}

// IntegrityEvent is one entry of the tamper-evidence log.
type IntegrityEvent struct {
	Kind        IntegrityKind `json:"kind"`
	OccurredAt  time.Time     `json:"occurred_at"`
	Description string        `json:"description"`
}

// NewIntegrityEvent builds an event with its description.
func NewIntegrityEvent(kind IntegrityKind, at time.Time) IntegrityEvent {
	return IntegrityEvent{Kind: kind, OccurredAt: at, Description: kind.Describe(at)}
}

// IntegrityEventInput is a client-reported event on the REST submit path.
type IntegrityEventInput struct {
	Kind       IntegrityKind `json:"kind" binding:"required,oneof=visibility-loss copy-attempt paste-attempt cut-attempt"`
	OccurredAt time.Time     `json:"occurred_at" binding:"required"`
}
