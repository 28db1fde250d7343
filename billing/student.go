package billing

import (
	"strings"
	"time"
)

// =============================================================================
// STUDENTS AND CLASSES
// =============================================================================

type StudentID string

type StudentStatus string

const (
	StudentActive         StudentStatus = "active"
	StudentTransferredOut StudentStatus = "transferred_out" // mutasi keluar
)

// Student is a santri with the class context billing needs.
type Student struct {
	ID          StudentID     `json:"id"`
	NIS         string        `json:"nis"`
	Name        string        `json:"name"`
	ClassName   ClassName     `json:"class_name"`
	Dormitory   string        `json:"dormitory,omitempty"`
	Status      StudentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	TransferOut *Date         `json:"transfer_out_date,omitempty"`
}

func (s Student) Validate() error {
	if s.ID == "" {
		return invalid("id", "is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return invalid("name", "is required")
	}
	if s.ClassName == "" {
		return invalid("class_name", "is required")
	}
	if s.Status != StudentActive && s.Status != StudentTransferredOut {
		return invalid("status", "unknown status %q", s.Status)
	}
	return nil
}

type Class struct {
	Name  ClassName `json:"name"`
	Level int       `json:"level"`
}

// StudentFilter selects students in ListStudents. Zero fields match all.
type StudentFilter struct {
	ClassName ClassName
	Status    StudentStatus
	Query     string // case-insensitive match on name or NIS
}

func (f StudentFilter) Matches(s Student) bool {
	if f.ClassName != "" && s.ClassName != f.ClassName {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(s.Name), q) && !strings.Contains(strings.ToLower(s.NIS), q) {
			return false
		}
	}
	return true
}
