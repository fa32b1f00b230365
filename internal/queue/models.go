package queue

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cu-library/etddepositor/internal/etd"
)

// Status represents the lifecycle of a package in the deposit queue.
type Status string

const (
	StatusReady      Status = "ready"
	StatusValidating Status = "validating"
	StatusExtracting Status = "extracting"
	StatusStaging    Status = "staging"
	StatusManifested Status = "manifested"
	StatusResolving  Status = "resolving"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

var allStatuses = []Status{
	StatusReady,
	StatusValidating,
	StatusExtracting,
	StatusStaging,
	StatusManifested,
	StatusResolving,
	StatusCompleted,
	StatusFailed,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// processingStatuses are the in-flight states a crashed run can leave
// behind.
var processingStatuses = map[Status]struct{}{
	StatusValidating: {},
	StatusExtracting: {},
	StatusStaging:    {},
	StatusResolving:  {},
}

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
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight
// operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// Item is one queued package persisted in SQLite.
type Item struct {
	ID              int64
	Name            string
	Path            string
	Status          Status
	RunID           string
	PackageDataJSON string
	DOISequence     int64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetPackageData stores the extracted record on the item.
func (i *Item) SetPackageData(data etd.PackageData) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	i.PackageDataJSON = string(encoded)
	return nil
}

// PackageData decodes the stored record. The zero record is returned
// when no data has been attached yet.
func (i *Item) PackageData() (etd.PackageData, error) {
	if i.PackageDataJSON == "" {
		return etd.PackageData{}, nil
	}
	var data etd.PackageData
	if err := json.Unmarshal([]byte(i.PackageDataJSON), &data); err != nil {
		return etd.PackageData{}, err
	}
	return data, nil
}

// SetFailed marks the item failed with a reason.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Ready      int
	Processing int
	Completed  int
	Failed     int
	Skipped    int
}
