package model

import (
	"sort"
	"time"
)

// MemoryType classifies a learned correction.
type MemoryType string

const (
	MemoryPricingCorrection MemoryType = "pricing_correction"
	MemoryPreference        MemoryType = "preference"
	MemoryPattern           MemoryType = "pattern"
	MemoryStyle             MemoryType = "style"
)

// MemoryTypes lists memory types in the order they are presented to the model.
var MemoryTypes = []MemoryType{MemoryPricingCorrection, MemoryPreference, MemoryPattern, MemoryStyle}

// Memory is an append-only learned rule distilled from a contractor's edits.
type Memory struct {
	ID        string            `json:"id"`
	AccountID string            `json:"user_id"`
	Type      MemoryType        `json:"memory_type"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// MostRecent returns up to n memories ordered newest first. The input is
// not modified.
func MostRecent(memories []Memory, n int) []Memory {
	out := append([]Memory(nil), memories...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Feedback records a contractor's edit of a generated estimate.
type Feedback struct {
	ID                string     `json:"id"`
	EstimateID        string     `json:"estimate_id"`
	AccountID         string     `json:"user_id"`
	OriginalLineItems []LineItem `json:"original_line_items"`
	EditedLineItems   []LineItem `json:"edited_line_items"`
	Approved          bool       `json:"approved"`
	Notes             string     `json:"feedback_notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
