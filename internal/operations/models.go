package operations

import (
	"strings"
	"time"
)

// Type identifies a kind of long-running library work.
type Type string

const (
	TypeScan          Type = "scan"
	TypeOrganize      Type = "organize"
	TypeImport        Type = "import"
	TypeMetadataFetch Type = "metadata_fetch"
)

var allTypes = []Type{TypeScan, TypeOrganize, TypeImport, TypeMetadataFetch}

// AllTypes returns the closed set of known operation types.
func AllTypes() []Type {
	cp := make([]Type, len(allTypes))
	copy(cp, allTypes)
	return cp
}

// ParseType converts a string into a known Type.
func ParseType(value string) (Type, bool) {
	normalized := Type(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range allTypes {
		if normalized == t {
			return t, true
		}
	}
	return "", false
}

// Status represents the lifecycle of an operation.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

var allStatuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCanceled}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	for _, s := range allStatuses {
		if normalized == s {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether a status ends the operation's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Operation is the authoritative record for one submitted unit of work.
// Progress is monotonically non-decreasing; Total is committed at most once
// (it stays 0 for operations without a pre-count phase). Error is only set
// when Status is failed.
type Operation struct {
	ID          string     `json:"operation_id"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Total       int        `json:"total"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	LogPath     string     `json:"log_path,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
