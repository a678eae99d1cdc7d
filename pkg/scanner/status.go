package scanner

import (
	"github.com/papercomputeco/shelf/pkg/explain"
	"github.com/papercomputeco/shelf/pkg/match"
	"github.com/papercomputeco/shelf/pkg/stability"
)

// Status is the caller-visible outcome of a scanner operation.
type Status string

const (
	StatusNotFound      Status = "not_found"
	StatusOwned         Status = "owned"
	StatusFound         Status = "found"
	StatusAIBusy        Status = "ai_busy"
	StatusAITimeout     Status = "ai_timeout"
	StatusInvalidImage  Status = "invalid_image"
	StatusSavedExisting Status = "saved_existing"
	StatusSavedNew      Status = "saved_new"
	StatusAlreadySaved  Status = "already_saved"
	StatusScanAgain     Status = "scan_again"
	StatusScanning      Status = "scanning"
	StatusStable        Status = "stable"
	StatusFailed        Status = "failed"
)

// Operation names label outcome metrics.
const (
	OpScan       = "scan"
	OpAdd        = "add"
	OpStableScan = "stable_scan"
	OpCapture    = "capture"
	OpIdentify   = "identify"
	OpExplain    = "explain"
)

// Result is the outcome of a scanner operation.
type Result struct {
	Status Status `json:"status"`

	// Title is the catalog title the outcome refers to.
	Title string `json:"title,omitempty"`

	// Candidate is the OCR text the decision was made on.
	Candidate string `json:"candidate,omitempty"`

	Match      match.Status `json:"match,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`

	Stability *stability.Snapshot `json:"stability,omitempty"`

	// Explanation answers a photo explain request.
	Explanation *explain.Explanation `json:"explanation,omitempty"`

	// Error describes a failed outcome.
	Error string `json:"error,omitempty"`
}

// Committed reports whether the outcome wrote to the user's shelf.
func (r Result) Committed() bool {
	return r.Status == StatusSavedNew || r.Status == StatusSavedExisting
}
