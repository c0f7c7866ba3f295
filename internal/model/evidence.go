package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EvidenceType represents the kind of evidence item.
type EvidenceType string

const (
	EvidenceTypeImage    EvidenceType = "image"
	EvidenceTypeDocument EvidenceType = "document"
	EvidenceTypeAudio    EvidenceType = "audio"
	EvidenceTypeVideo    EvidenceType = "video"
	EvidenceTypePhysical EvidenceType = "physical"
	EvidenceTypeDigital  EvidenceType = "digital"
	EvidenceTypeOther    EvidenceType = "other"
)

// Valid reports whether t is a known evidence type.
func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceTypeImage, EvidenceTypeDocument, EvidenceTypeAudio, EvidenceTypeVideo,
		EvidenceTypePhysical, EvidenceTypeDigital, EvidenceTypeOther:
		return true
	}
	return false
}

// Custody actions recorded by the evidence manager.
const (
	CustodyActionUpdated  = "updated"
	CustodyActionAnalyzed = "analyzed"
)

// Evidence represents one item attached to exactly one case.
type Evidence struct {
	ID             uuid.UUID                   `json:"id" gorm:"type:char(36);primaryKey"`
	Identifier     string                      `json:"evidence_id" gorm:"size:64;uniqueIndex;not null"`
	CaseID         uuid.UUID                   `json:"case_id" gorm:"type:char(36);not null;index"`
	Type           EvidenceType                `json:"type" gorm:"type:varchar(20);not null;index"`
	Title          string                      `json:"title" gorm:"size:255;not null"`
	Description    string                      `json:"description,omitempty" gorm:"type:text"`
	FileURL        string                      `json:"file_url,omitempty" gorm:"size:1024"`
	FileKey        string                      `json:"-" gorm:"size:512"`
	FileType       string                      `json:"file_type,omitempty" gorm:"size:128"`
	FileSize       int64                       `json:"file_size,omitempty"`
	Metadata       datatypes.JSON              `json:"metadata,omitempty"`
	Location       string                      `json:"location,omitempty" gorm:"size:255"`
	CollectedByID  uuid.UUID                   `json:"collected_by" gorm:"type:char(36);not null;index"`
	CollectionDate time.Time                   `json:"collection_date" gorm:"not null"`
	Tags           datatypes.JSONSlice[string] `json:"tags"`
	CustodyCount   int                         `json:"-" gorm:"not null;default:0"`
	ResultCount    int                         `json:"-" gorm:"not null;default:0"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`

	// Relations
	Case            *Case            `json:"case,omitempty" gorm:"foreignKey:CaseID"`
	CollectedBy     *User            `json:"collected_by_user,omitempty" gorm:"foreignKey:CollectedByID"`
	Chain           []CustodyEntry   `json:"chain" gorm:"foreignKey:EvidenceID"`
	AnalysisResults []AnalysisResult `json:"analysis_results" gorm:"foreignKey:EvidenceID"`
}

// TableName keeps the table name singular.
func (Evidence) TableName() string { return "evidence" }

// BeforeCreate sets UUID before creating the record.
func (e *Evidence) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// CustodyEntry is one element of an evidence item's chain of custody.
// Entries are append-only; Sequence is 1-based and unique per evidence item.
type CustodyEntry struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	EvidenceID  uuid.UUID `json:"-" gorm:"type:char(36);not null;uniqueIndex:idx_custody_evidence_seq,priority:1"`
	Sequence    int       `json:"sequence" gorm:"not null;uniqueIndex:idx_custody_evidence_seq,priority:2"`
	HandledByID uuid.UUID `json:"handled_by" gorm:"type:char(36);not null;index"`
	Action      string    `json:"action" gorm:"size:64;not null"`
	Timestamp   time.Time `json:"timestamp" gorm:"not null"`
	Notes       string    `json:"notes,omitempty" gorm:"type:text"`

	HandledBy *User `json:"handled_by_user,omitempty" gorm:"foreignKey:HandledByID"`
}

// BeforeCreate sets UUID before creating the record.
func (c *CustodyEntry) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// AnalysisResult is a recorded outcome of an examination of an evidence item.
type AnalysisResult struct {
	ID           uuid.UUID                   `json:"id" gorm:"type:char(36);primaryKey"`
	EvidenceID   uuid.UUID                   `json:"-" gorm:"type:char(36);not null;uniqueIndex:idx_result_evidence_seq,priority:1"`
	Sequence     int                         `json:"sequence" gorm:"not null;uniqueIndex:idx_result_evidence_seq,priority:2"`
	AnalysisType string                      `json:"analysis_type" gorm:"size:64;not null;default:'basic'"`
	Result       string                      `json:"result" gorm:"type:text"`
	AnalystID    uuid.UUID                   `json:"analyst" gorm:"type:char(36);not null;index"`
	Confidence   decimal.Decimal             `json:"confidence" gorm:"type:decimal(4,3);not null"`
	Notes        string                      `json:"notes,omitempty" gorm:"type:text"`
	Objects      datatypes.JSONSlice[string] `json:"objects,omitempty"`
	CrimeType    string                      `json:"crime_type,omitempty" gorm:"size:128"`
	Timestamp    time.Time                   `json:"timestamp" gorm:"not null"`

	Analyst *User `json:"analyst_user,omitempty" gorm:"foreignKey:AnalystID"`
}

// BeforeCreate sets UUID before creating the record.
func (a *AnalysisResult) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
