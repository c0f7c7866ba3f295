package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"crimesleuth/internal/auth"
	"crimesleuth/internal/cache"
	apperrors "crimesleuth/internal/errors"
	"crimesleuth/internal/model"
	"crimesleuth/internal/policy"
	"crimesleuth/internal/query"
	"crimesleuth/internal/repository"
)

// caseCacheTTL bounds how long a detail read that raced an evidence write can
// serve a stale evidence_count after invalidation.
const caseCacheTTL = 30 * time.Second

func caseCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("case:%s", id)
}

// CaseService manages the case lifecycle.
type CaseService interface {
	CreateCase(ctx context.Context, actor auth.Principal, in CaseInput) (*model.Case, error)
	ListCases(ctx context.Context, actor auth.Principal, q query.ListQuery) (*Page[model.Case], error)
	GetCase(ctx context.Context, actor auth.Principal, id uuid.UUID) (*model.CaseDetail, error)
	UpdateCase(ctx context.Context, actor auth.Principal, id uuid.UUID, patch CaseUpdate) (*model.Case, error)
	DeleteCase(ctx context.Context, actor auth.Principal, id uuid.UUID) error
}

type caseService struct {
	caseRepo repository.CaseRepository
	userRepo repository.UserRepository
	cache    *cache.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewCaseService creates a new case service.
func NewCaseService(caseRepo repository.CaseRepository, userRepo repository.UserRepository, cache *cache.Client, logger *slog.Logger) CaseService {
	return &caseService{
		caseRepo: caseRepo,
		userRepo: userRepo,
		cache:    cache,
		logger:   logger.With("component", "cases"),
		now:      time.Now,
	}
}

// CreateCase opens a new case owned by actor.
func (s *caseService) CreateCase(ctx context.Context, actor auth.Principal, in CaseInput) (*model.Case, error) {
	if err := authorize(actor, policy.CaseCreate, policy.Other); err != nil {
		return nil, err
	}

	in.CaseNumber = strings.TrimSpace(in.CaseNumber)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	exists, err := s.caseRepo.ExistsByNumber(ctx, in.CaseNumber)
	if err != nil {
		return nil, fmt.Errorf("check case number: %w", err)
	}
	if exists {
		return nil, apperrors.ErrDuplicateCaseNumber
	}
	if err := s.checkAssignee(ctx, in.AssignedTo); err != nil {
		return nil, err
	}

	c := &model.Case{
		CaseNumber:   in.CaseNumber,
		Title:        in.Title,
		Description:  in.Description,
		Status:       model.CaseStatusOpen,
		Priority:     in.Priority,
		AssignedToID: in.AssignedTo,
		CreatedByID:  actor.ID,
		DateOpened:   s.now().UTC(),
		Tags:         in.Tags,
		Location:     in.Location,
	}
	if c.Priority == "" {
		c.Priority = model.CasePriorityMedium
	}
	if in.DateOpened != nil {
		c.DateOpened = in.DateOpened.UTC()
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}

	if err := s.caseRepo.Create(ctx, c); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrDuplicateCaseNumber
		}
		return nil, fmt.Errorf("create case: %w", err)
	}

	s.logger.InfoContext(ctx, "case created", "case_id", c.ID, "case_number", c.CaseNumber, "user_id", actor.ID)
	return c, nil
}

// ListCases returns one page of cases.
func (s *caseService) ListCases(ctx context.Context, actor auth.Principal, q query.ListQuery) (*Page[model.Case], error) {
	if err := authorize(actor, policy.CaseRead, policy.Other); err != nil {
		return nil, err
	}

	items, total, err := s.caseRepo.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	if items == nil {
		items = []model.Case{}
	}
	return &Page[model.Case]{
		Items:      items,
		Total:      total,
		Pagination: query.Paginate(q.Page, q.Limit, total),
	}, nil
}

// GetCase returns a case with its evidence summaries. Results are cached
// until the case or its evidence changes.
func (s *caseService) GetCase(ctx context.Context, actor auth.Principal, id uuid.UUID) (*model.CaseDetail, error) {
	if err := authorize(actor, policy.CaseRead, policy.Other); err != nil {
		return nil, err
	}

	var cached model.CaseDetail
	if s.cache.GetJSON(ctx, caseCacheKey(id), &cached) {
		return &cached, nil
	}

	var (
		c         *model.Case
		summaries []model.EvidenceSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		c, err = s.caseRepo.FindByID(gctx, id)
		if err != nil {
			return notFound(err, apperrors.ErrCaseNotFound, "find case")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		summaries, err = s.caseRepo.EvidenceSummaries(gctx, id)
		if err != nil {
			return fmt.Errorf("list evidence summaries: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	detail := &model.CaseDetail{Case: *c, Evidence: summaries}
	_ = s.cache.SetJSON(ctx, caseCacheKey(id), detail, caseCacheTTL)
	return detail, nil
}

// UpdateCase applies a partial update. Only the creator, supervisors and
// admins may update a case.
func (s *caseService) UpdateCase(ctx context.Context, actor auth.Principal, id uuid.UUID, patch CaseUpdate) (*model.Case, error) {
	c, err := s.caseRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.ErrCaseNotFound, "find case")
	}
	if err := authorize(actor, policy.CaseUpdate, policy.OwnershipOf(actor.ID, c.CreatedByID)); err != nil {
		return nil, err
	}
	if err := validateInput(patch); err != nil {
		return nil, err
	}

	if patch.Title != nil {
		c.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		c.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		c.Priority = *patch.Priority
	}
	if patch.AssignedTo != nil {
		if err := s.checkAssignee(ctx, patch.AssignedTo); err != nil {
			return nil, err
		}
		c.AssignedToID = patch.AssignedTo
	}
	if patch.Tags != nil {
		c.Tags = *patch.Tags
	}
	if patch.Location != nil {
		c.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.DateClosed != nil {
		closed := patch.DateClosed.UTC()
		c.DateClosed = &closed
	}
	if patch.Status != nil {
		c.Status = *patch.Status
		switch {
		case c.Status.Terminal() && c.DateClosed == nil:
			closed := s.now().UTC()
			c.DateClosed = &closed
		case !c.Status.Terminal() && patch.DateClosed == nil:
			// reopened
			c.DateClosed = nil
		}
	}
	if c.Title == "" || c.Description == "" {
		return nil, apperrors.Invalid("title and description must not be empty")
	}

	if err := s.caseRepo.Update(ctx, c); err != nil {
		return nil, notFound(err, apperrors.ErrCaseNotFound, "update case")
	}
	_ = s.cache.Delete(ctx, caseCacheKey(id))

	s.logger.InfoContext(ctx, "case updated", "case_id", id, "user_id", actor.ID)
	return c, nil
}

// DeleteCase removes an empty case. Only the creator and admins may delete.
func (s *caseService) DeleteCase(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	c, err := s.caseRepo.FindByID(ctx, id)
	if err != nil {
		return notFound(err, apperrors.ErrCaseNotFound, "find case")
	}
	if err := authorize(actor, policy.CaseDelete, policy.OwnershipOf(actor.ID, c.CreatedByID)); err != nil {
		return err
	}

	if err := s.caseRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCaseNotEmpty) {
			return apperrors.ErrCaseHasEvidence
		}
		return notFound(err, apperrors.ErrCaseNotFound, "delete case")
	}
	_ = s.cache.Delete(ctx, caseCacheKey(id))

	s.logger.InfoContext(ctx, "case deleted", "case_id", id, "user_id", actor.ID)
	return nil
}

func (s *caseService) checkAssignee(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.userRepo.FindByID(ctx, *id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Invalid("assigned user %s does not exist", *id)
		}
		return fmt.Errorf("find assignee: %w", err)
	}
	return nil
}
