package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CaseStatus represents the lifecycle status of a case.
type CaseStatus string

const (
	CaseStatusOpen     CaseStatus = "open"
	CaseStatusActive   CaseStatus = "active"
	CaseStatusPending  CaseStatus = "pending"
	CaseStatusClosed   CaseStatus = "closed"
	CaseStatusArchived CaseStatus = "archived"
)

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusOpen, CaseStatusActive, CaseStatusPending, CaseStatusClosed, CaseStatusArchived:
		return true
	}
	return false
}

// Terminal reports whether the status ends active work on the case.
func (s CaseStatus) Terminal() bool {
	return s == CaseStatusClosed || s == CaseStatusArchived
}

// CasePriority represents the priority of a case.
type CasePriority string

const (
	CasePriorityLow      CasePriority = "low"
	CasePriorityMedium   CasePriority = "medium"
	CasePriorityHigh     CasePriority = "high"
	CasePriorityCritical CasePriority = "critical"
)

// Valid reports whether p is a known priority.
func (p CasePriority) Valid() bool {
	switch p {
	case CasePriorityLow, CasePriorityMedium, CasePriorityHigh, CasePriorityCritical:
		return true
	}
	return false
}

// Case represents an investigation.
// EvidenceCount is a denormalized count of Evidence rows referencing the case
// and is only changed in the same transaction as the evidence insert/delete.
type Case struct {
	ID            uuid.UUID                   `json:"id" gorm:"type:char(36);primaryKey"`
	CaseNumber    string                      `json:"case_number" gorm:"size:64;uniqueIndex;not null"`
	Title         string                      `json:"title" gorm:"size:255;not null"`
	Description   string                      `json:"description" gorm:"type:text;not null"`
	Status        CaseStatus                  `json:"status" gorm:"type:varchar(20);not null;default:'open';index"`
	Priority      CasePriority                `json:"priority" gorm:"type:varchar(20);not null;default:'medium';index"`
	AssignedToID  *uuid.UUID                  `json:"assigned_to,omitempty" gorm:"type:char(36);index"`
	CreatedByID   uuid.UUID                   `json:"created_by" gorm:"type:char(36);not null;index"`
	DateOpened    time.Time                   `json:"date_opened" gorm:"not null;index"`
	DateClosed    *time.Time                  `json:"date_closed,omitempty"`
	Tags          datatypes.JSONSlice[string] `json:"tags"`
	Location      string                      `json:"location,omitempty" gorm:"size:255"`
	EvidenceCount int                         `json:"evidence_count" gorm:"not null;default:0"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`

	// Relations
	AssignedTo *User `json:"-" gorm:"foreignKey:AssignedToID"`
	CreatedBy  *User `json:"-" gorm:"foreignKey:CreatedByID"`
}

// BeforeCreate sets UUID before creating the record.
func (c *Case) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// EvidenceSummary is the short form of an evidence record shown with its case.
type EvidenceSummary struct {
	ID             uuid.UUID    `json:"id"`
	Identifier     string       `json:"evidence_id"`
	Title          string       `json:"title"`
	Type           EvidenceType `json:"type"`
	FileURL        string       `json:"file_url,omitempty"`
	CollectionDate time.Time    `json:"collection_date"`
}

// CaseDetail is a case together with its evidence summaries.
type CaseDetail struct {
	Case
	Evidence []EvidenceSummary `json:"evidence"`
}
