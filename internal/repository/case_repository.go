package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crimesleuth/internal/model"
	"crimesleuth/internal/query"
)

// ErrCaseNotEmpty is returned when deleting a case that still has evidence.
var ErrCaseNotEmpty = errors.New("case still has evidence")

// caseUpdatableColumns are the columns a case update may touch. created_by,
// case_number and evidence_count are deliberately absent.
var caseUpdatableColumns = []string{
	"title", "description", "status", "priority", "assigned_to_id",
	"date_opened", "date_closed", "tags", "location", "updated_at",
}

// CaseRepository defines case persistence operations.
type CaseRepository interface {
	Create(ctx context.Context, c *model.Case) error
	Update(ctx context.Context, c *model.Case) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Case, error)
	ExistsByNumber(ctx context.Context, caseNumber string) (bool, error)
	List(ctx context.Context, q query.ListQuery) ([]model.Case, int64, error)
	EvidenceSummaries(ctx context.Context, caseID uuid.UUID) ([]model.EvidenceSummary, error)
	RecountEvidence(ctx context.Context) (int64, error)
}

type caseRepository struct {
	db *gorm.DB
}

// NewCaseRepository creates a new case repository.
func NewCaseRepository(db *gorm.DB) CaseRepository {
	return &caseRepository{db: db}
}

// Create inserts a case. A duplicate case number surfaces as gorm.ErrDuplicatedKey.
func (r *caseRepository) Create(ctx context.Context, c *model.Case) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// Update writes the patchable columns of c.
func (r *caseRepository) Update(ctx context.Context, c *model.Case) error {
	res := r.db.WithContext(ctx).Model(c).Select(caseUpdatableColumns).Updates(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a case that has no evidence. The case row is locked while
// the evidence rows are counted so a concurrent insert cannot slip in.
func (r *caseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Case
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}

		var n int64
		if err := tx.Model(&model.Evidence{}).Where("case_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrCaseNotEmpty
		}
		return tx.Where("id = ?", id).Delete(&model.Case{}).Error
	})
}

// FindByID finds a case by ID.
func (r *caseRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Case, error) {
	var c model.Case
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ExistsByNumber reports whether a case with the number exists.
func (r *caseRepository) ExistsByNumber(ctx context.Context, caseNumber string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Case{}).
		Where("case_number = ?", caseNumber).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns one page of cases matching q, and the total match count.
func (r *caseRepository) List(ctx context.Context, q query.ListQuery) ([]model.Case, int64, error) {
	base := applyFilters(r.db.WithContext(ctx).Model(&model.Case{}), q)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var cases []model.Case
	if err := applyPage(base.Session(&gorm.Session{}), q).Find(&cases).Error; err != nil {
		return nil, 0, err
	}
	return cases, total, nil
}

// EvidenceSummaries returns the short form of every evidence item in a case,
// oldest first.
func (r *caseRepository) EvidenceSummaries(ctx context.Context, caseID uuid.UUID) ([]model.EvidenceSummary, error) {
	summaries := []model.EvidenceSummary{}
	err := r.db.WithContext(ctx).Model(&model.Evidence{}).
		Select("id", "identifier", "title", "type", "file_url", "collection_date").
		Where("case_id = ?", caseID).
		Order("collection_date").Order("id").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// RecountEvidence recomputes evidence_count for every case from the evidence
// table and returns the number of cases whose counter was corrected.
func (r *caseRepository) RecountEvidence(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE cases SET evidence_count = (
			SELECT COUNT(*) FROM evidence WHERE evidence.case_id = cases.id
		)
		WHERE evidence_count <> (
			SELECT COUNT(*) FROM evidence WHERE evidence.case_id = cases.id
		)`)
	return res.RowsAffected, res.Error
}
