package service

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"crimesleuth/internal/model"
)

// CaseInput is the payload for opening a case.
type CaseInput struct {
	CaseNumber  string             `json:"case_number" validate:"required,max=64"`
	Title       string             `json:"title" validate:"required,max=255"`
	Description string             `json:"description" validate:"required"`
	Priority    model.CasePriority `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssignedTo  *uuid.UUID         `json:"assigned_to"`
	DateOpened  *time.Time         `json:"date_opened"`
	Tags        []string           `json:"tags"`
	Location    string             `json:"location" validate:"max=255"`
}

// CaseUpdate is a partial case update. Nil fields are left unchanged.
type CaseUpdate struct {
	Title       *string             `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string             `json:"description" validate:"omitempty,min=1"`
	Status      *model.CaseStatus   `json:"status" validate:"omitempty,oneof=open active pending closed archived"`
	Priority    *model.CasePriority `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssignedTo  *uuid.UUID          `json:"assigned_to"`
	DateClosed  *time.Time          `json:"date_closed"`
	Tags        *[]string           `json:"tags"`
	Location    *string             `json:"location" validate:"omitempty,max=255"`
}

// EvidenceInput is the payload for attaching evidence to a case.
type EvidenceInput struct {
	Identifier     string             `json:"evidence_id" form:"evidence_id" validate:"required,max=64"`
	Type           model.EvidenceType `json:"type" form:"type" validate:"required,oneof=image document audio video physical digital other"`
	Title          string             `json:"title" form:"title" validate:"required,max=255"`
	Description    string             `json:"description" form:"description"`
	FileURL        string             `json:"file_url" form:"file_url" validate:"max=1024"`
	FileType       string             `json:"file_type" form:"file_type" validate:"max=128"`
	FileSize       int64              `json:"file_size" form:"file_size" validate:"gte=0"`
	Metadata       datatypes.JSON     `json:"metadata" swaggertype:"object"`
	Location       string             `json:"location" form:"location" validate:"max=255"`
	CollectionDate *time.Time         `json:"collection_date"`
	Tags           []string           `json:"tags" form:"tags"`
	Chain          json.RawMessage    `json:"chain,omitempty" swaggerignore:"true"`
}

// EvidenceUpdate is a partial evidence update. Nil fields are left unchanged.
// Notes are recorded on the custody entry the update appends.
type EvidenceUpdate struct {
	Type           *model.EvidenceType `json:"type" validate:"omitempty,oneof=image document audio video physical digital other"`
	Title          *string             `json:"title" validate:"omitempty,min=1,max=255"`
	Description    *string             `json:"description"`
	FileURL        *string             `json:"file_url" validate:"omitempty,max=1024"`
	FileType       *string             `json:"file_type" validate:"omitempty,max=128"`
	Metadata       datatypes.JSON      `json:"metadata" swaggertype:"object"`
	Location       *string             `json:"location" validate:"omitempty,max=255"`
	CollectionDate *time.Time          `json:"collection_date"`
	Tags           *[]string           `json:"tags"`
	Notes          string              `json:"notes"`
	Chain          json.RawMessage     `json:"chain,omitempty" swaggerignore:"true"`
}

// AnalysisInput is the payload for recording an analysis.
type AnalysisInput struct {
	AnalysisType string           `json:"analysis_type" validate:"omitempty,max=64"`
	Result       string           `json:"result"`
	Confidence   *decimal.Decimal `json:"confidence" swaggertype:"number"`
	Notes        string           `json:"notes"`
	UseML        bool             `json:"use_ml"`
}

// FileUpload is a file received with an evidence submission.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ProfileUpdate changes a user's own profile. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=255"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=1024"`
}

const (
	defaultAnalysisType   = "basic"
	mlAnalysisType        = "ml-image"
	defaultAnalysisResult = "Analysis pending"
	defaultCustodyNotes   = "Evidence details updated"
)

var defaultConfidence = decimal.RequireFromString("0.8")

var decimalOne = decimal.NewFromInt(1)
