// README: Job ticket created when a service request is converted.
package job

import (
	"fmt"
	"strings"
	"time"

	"repairtrack/internal/types"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// UnassignedTechnician is the placeholder stored until staff assign someone.
const UnassignedTechnician = "Unassigned"

type Job struct {
	ID            string
	RequestID     types.ID
	Customer      string
	CustomerPhone string
	Device        string
	Issue         string
	Status        Status
	Priority      string
	Technician    string
	EstimatedCost *types.Money
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasTechnician reports whether a real technician is on the job.
func (j *Job) HasTechnician() bool {
	if j == nil {
		return false
	}
	t := strings.TrimSpace(j.Technician)
	return t != "" && !strings.EqualFold(t, UnassignedTechnician)
}

// Seed carries the request data copied onto a new job.
type Seed struct {
	RequestID     types.ID
	Customer      string
	CustomerPhone string
	Device        string
	Issue         string
	Priority      string
	EstimatedCost *types.Money
	Currency      string
}

// FormatID renders JOB-YYYY-NNNN.
func FormatID(year, seq int) string {
	return fmt.Sprintf("JOB-%d-%04d", year, seq)
}

// ParseSequence extracts NNNN from a job id, or 0 when it does not match.
func ParseSequence(id string) int {
	idx := strings.LastIndexByte(id, '-')
	if idx < 0 {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(id[idx+1:], "%d", &n); err != nil {
		return 0
	}
	return n
}
