package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crimesleuth/internal/auth"
	"crimesleuth/internal/cache"
	apperrors "crimesleuth/internal/errors"
	"crimesleuth/internal/mlclient"
	"crimesleuth/internal/model"
	"crimesleuth/internal/policy"
	"crimesleuth/internal/query"
	"crimesleuth/internal/repository"
	"crimesleuth/internal/storage"
)

// ImageAnalyzer is the remote image analysis service.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, filename, contentType string, image io.Reader) (*mlclient.ImageAnalysis, error)
	Health(ctx context.Context) (*mlclient.Health, error)
}

// EvidenceService manages evidence items and their chain of custody.
type EvidenceService interface {
	AddEvidence(ctx context.Context, actor auth.Principal, caseID uuid.UUID, in EvidenceInput, file *FileUpload) (*model.Evidence, error)
	ListEvidence(ctx context.Context, actor auth.Principal, caseID *uuid.UUID, q query.ListQuery) (*Page[model.Evidence], error)
	GetEvidence(ctx context.Context, actor auth.Principal, id uuid.UUID) (*model.Evidence, error)
	UpdateEvidence(ctx context.Context, actor auth.Principal, id uuid.UUID, patch EvidenceUpdate) (*model.Evidence, error)
	DeleteEvidence(ctx context.Context, actor auth.Principal, id uuid.UUID) error
	Analyze(ctx context.Context, actor auth.Principal, id uuid.UUID, in AnalysisInput) (*model.Evidence, error)
}

type evidenceService struct {
	evidenceRepo repository.EvidenceRepository
	caseRepo     repository.CaseRepository
	store        storage.Store
	analyzer     ImageAnalyzer
	cache        *cache.Client
	logger       *slog.Logger
	now          func() time.Time
}

// NewEvidenceService creates a new evidence service.
func NewEvidenceService(
	evidenceRepo repository.EvidenceRepository,
	caseRepo repository.CaseRepository,
	store storage.Store,
	analyzer ImageAnalyzer,
	cache *cache.Client,
	logger *slog.Logger,
) EvidenceService {
	return &evidenceService{
		evidenceRepo: evidenceRepo,
		caseRepo:     caseRepo,
		store:        store,
		analyzer:     analyzer,
		cache:        cache,
		logger:       logger.With("component", "evidence"),
		now:          time.Now,
	}
}

// AddEvidence attaches a new item to a case. An uploaded file is stored
// first and removed again if the database write fails.
func (s *evidenceService) AddEvidence(ctx context.Context, actor auth.Principal, caseID uuid.UUID, in EvidenceInput, file *FileUpload) (*model.Evidence, error) {
	if _, err := s.caseRepo.FindByID(ctx, caseID); err != nil {
		return nil, notFound(err, apperrors.ErrCaseNotFound, "find case")
	}
	if err := authorize(actor, policy.EvidenceAdd, policy.Other); err != nil {
		return nil, err
	}
	if err := rejectChain(in.Chain); err != nil {
		return nil, err
	}

	in.Identifier = strings.TrimSpace(in.Identifier)
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	taken, err := s.evidenceRepo.IdentifierExists(ctx, in.Identifier)
	if err != nil {
		return nil, fmt.Errorf("check evidence id: %w", err)
	}
	if taken {
		return nil, apperrors.ErrDuplicateEvidenceID
	}

	ev := &model.Evidence{
		Identifier:     in.Identifier,
		CaseID:         caseID,
		Type:           in.Type,
		Title:          in.Title,
		Description:    in.Description,
		FileURL:        in.FileURL,
		FileType:       in.FileType,
		FileSize:       in.FileSize,
		Metadata:       in.Metadata,
		Location:       in.Location,
		CollectedByID:  actor.ID,
		CollectionDate: s.now().UTC(),
		Tags:           in.Tags,
	}
	if in.CollectionDate != nil {
		ev.CollectionDate = in.CollectionDate.UTC()
	}
	if ev.Tags == nil {
		ev.Tags = []string{}
	}

	if file != nil {
		obj, err := s.store.Put(ctx, storage.NewKey(caseID, file.Filename), file.Body, file.Size, file.ContentType)
		if err != nil {
			return nil, fmt.Errorf("store evidence file: %w", err)
		}
		ev.FileKey = obj.Key
		ev.FileURL = obj.URL
		ev.FileType = file.ContentType
		ev.FileSize = obj.Size
	}

	if err := s.evidenceRepo.CreateForCase(ctx, ev); err != nil {
		if ev.FileKey != "" {
			s.deleteFile(ctx, ev.FileKey)
		}
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return nil, apperrors.ErrDuplicateEvidenceID
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperrors.ErrCaseNotFound
		}
		return nil, fmt.Errorf("create evidence: %w", err)
	}
	_ = s.cache.Delete(ctx, caseCacheKey(caseID))

	s.logger.InfoContext(ctx, "evidence added", "evidence_id", ev.ID, "case_id", caseID, "user_id", actor.ID)
	ev.Chain = []model.CustodyEntry{}
	ev.AnalysisResults = []model.AnalysisResult{}
	return ev, nil
}

// ListEvidence lists evidence for one case, or across all cases when caseID is nil.
func (s *evidenceService) ListEvidence(ctx context.Context, actor auth.Principal, caseID *uuid.UUID, q query.ListQuery) (*Page[model.Evidence], error) {
	if err := authorize(actor, policy.EvidenceRead, policy.Other); err != nil {
		return nil, err
	}
	if caseID != nil {
		if _, err := s.caseRepo.FindByID(ctx, *caseID); err != nil {
			return nil, notFound(err, apperrors.ErrCaseNotFound, "find case")
		}
	}

	items, total, err := s.evidenceRepo.List(ctx, caseID, q)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	if items == nil {
		items = []model.Evidence{}
	}
	return &Page[model.Evidence]{
		Items:      items,
		Total:      total,
		Pagination: query.Paginate(q.Page, q.Limit, total),
	}, nil
}

// GetEvidence returns an item with its case, collector, chain and results.
func (s *evidenceService) GetEvidence(ctx context.Context, actor auth.Principal, id uuid.UUID) (*model.Evidence, error) {
	if err := authorize(actor, policy.EvidenceRead, policy.Other); err != nil {
		return nil, err
	}
	ev, err := s.evidenceRepo.FindDetail(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.ErrEvidenceNotFound, "find evidence")
	}
	return ev, nil
}

// UpdateEvidence applies a partial update and appends exactly one custody
// entry in the same transaction.
func (s *evidenceService) UpdateEvidence(ctx context.Context, actor auth.Principal, id uuid.UUID, patch EvidenceUpdate) (*model.Evidence, error) {
	current, err := s.evidenceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.ErrEvidenceNotFound, "find evidence")
	}
	if err := authorize(actor, policy.EvidenceUpdate, policy.OwnershipOf(actor.ID, current.CollectedByID)); err != nil {
		return nil, err
	}
	if err := rejectChain(patch.Chain); err != nil {
		return nil, err
	}
	if err := validateInput(patch); err != nil {
		return nil, err
	}

	notes := strings.TrimSpace(patch.Notes)
	if notes == "" {
		notes = defaultCustodyNotes
	}
	entry := &model.CustodyEntry{
		HandledByID: actor.ID,
		Action:      model.CustodyActionUpdated,
		Timestamp:   s.now().UTC(),
		Notes:       notes,
	}

	_, err = s.evidenceRepo.Update(ctx, id, func(ev *model.Evidence) error {
		applyEvidencePatch(ev, patch)
		if ev.Title == "" {
			return apperrors.Invalid("title must not be empty")
		}
		return nil
	}, entry)
	if err != nil {
		return nil, notFound(err, apperrors.ErrEvidenceNotFound, "update evidence")
	}
	_ = s.cache.Delete(ctx, caseCacheKey(current.CaseID))

	s.logger.InfoContext(ctx, "evidence updated", "evidence_id", id, "user_id", actor.ID, "custody_sequence", entry.Sequence)
	return s.GetEvidence(ctx, actor, id)
}

func applyEvidencePatch(ev *model.Evidence, patch EvidenceUpdate) {
	if patch.Type != nil {
		ev.Type = *patch.Type
	}
	if patch.Title != nil {
		ev.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	if patch.FileURL != nil {
		ev.FileURL = *patch.FileURL
	}
	if patch.FileType != nil {
		ev.FileType = *patch.FileType
	}
	if patch.Metadata != nil {
		ev.Metadata = patch.Metadata
	}
	if patch.Location != nil {
		ev.Location = *patch.Location
	}
	if patch.CollectionDate != nil {
		ev.CollectionDate = patch.CollectionDate.UTC()
	}
	if patch.Tags != nil {
		ev.Tags = *patch.Tags
	}
}

// DeleteEvidence removes an item, its custody chain and results, then
// disposes of its stored file. File removal failures are only logged.
func (s *evidenceService) DeleteEvidence(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	current, err := s.evidenceRepo.FindByID(ctx, id)
	if err != nil {
		return notFound(err, apperrors.ErrEvidenceNotFound, "find evidence")
	}
	if err := authorize(actor, policy.EvidenceDelete, policy.OwnershipOf(actor.ID, current.CollectedByID)); err != nil {
		return err
	}

	deleted, err := s.evidenceRepo.Delete(ctx, id)
	if err != nil {
		return notFound(err, apperrors.ErrEvidenceNotFound, "delete evidence")
	}
	if deleted.FileKey != "" {
		s.deleteFile(ctx, deleted.FileKey)
	}
	_ = s.cache.Delete(ctx, caseCacheKey(deleted.CaseID))

	s.logger.InfoContext(ctx, "evidence deleted", "evidence_id", id, "case_id", deleted.CaseID, "user_id", actor.ID)
	return nil
}

// Analyze records an analysis result and its custody entry together. When
// UseML is set the stored image is sent to the analysis service first, and a
// failure there leaves the evidence untouched.
func (s *evidenceService) Analyze(ctx context.Context, actor auth.Principal, id uuid.UUID, in AnalysisInput) (*model.Evidence, error) {
	ev, err := s.evidenceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.ErrEvidenceNotFound, "find evidence")
	}
	if err := authorize(actor, policy.EvidenceAnalyze, policy.Other); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	result := &model.AnalysisResult{
		AnalysisType: strings.TrimSpace(in.AnalysisType),
		Result:       in.Result,
		AnalystID:    actor.ID,
		Confidence:   defaultConfidence,
		Notes:        in.Notes,
		Timestamp:    s.now().UTC(),
	}
	if in.Confidence != nil {
		if in.Confidence.IsNegative() || in.Confidence.GreaterThan(decimalOne) {
			return nil, apperrors.Invalid("confidence must be between 0 and 1")
		}
		result.Confidence = *in.Confidence
	}

	if in.UseML {
		analysis, err := s.runImageAnalysis(ctx, ev)
		if err != nil {
			return nil, err
		}
		if result.AnalysisType == "" {
			result.AnalysisType = mlAnalysisType
		}
		if result.Result == "" {
			result.Result = analysis.Summary
		}
		result.Objects = analysis.Objects
		result.CrimeType = analysis.CrimeType
	}
	if result.AnalysisType == "" {
		result.AnalysisType = defaultAnalysisType
	}
	if result.Result == "" {
		result.Result = defaultAnalysisResult
	}

	entry := &model.CustodyEntry{
		HandledByID: actor.ID,
		Action:      model.CustodyActionAnalyzed,
		Timestamp:   result.Timestamp,
		Notes:       fmt.Sprintf("Analysis of type %s conducted", result.AnalysisType),
	}
	if err := s.evidenceRepo.AppendAnalysis(ctx, id, result, entry); err != nil {
		return nil, notFound(err, apperrors.ErrEvidenceNotFound, "append analysis")
	}

	s.logger.InfoContext(ctx, "evidence analyzed", "evidence_id", id, "analysis_type", result.AnalysisType, "user_id", actor.ID)
	return s.GetEvidence(ctx, actor, id)
}

func (s *evidenceService) runImageAnalysis(ctx context.Context, ev *model.Evidence) (*mlclient.ImageAnalysis, error) {
	if ev.Type != model.EvidenceTypeImage || ev.FileKey == "" {
		return nil, apperrors.Invalid("evidence has no stored image to analyze")
	}
	if s.analyzer == nil {
		return nil, apperrors.ErrMLUnavailable.WithCause(mlclient.ErrNotConfigured)
	}

	rc, err := s.store.Open(ctx, ev.FileKey)
	if err != nil {
		return nil, fmt.Errorf("open evidence file: %w", err)
	}
	defer rc.Close()

	analysis, err := s.analyzer.AnalyzeImage(ctx, ev.FileKey, ev.FileType, rc)
	if err != nil {
		s.logger.WarnContext(ctx, "image analysis failed", "evidence_id", ev.ID, "error", err)
		return nil, apperrors.ErrMLUnavailable.WithCause(err)
	}
	return analysis, nil
}

func (s *evidenceService) deleteFile(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to delete evidence file", "key", key, "error", err)
	}
}
