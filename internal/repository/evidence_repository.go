package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crimesleuth/internal/model"
	"crimesleuth/internal/query"
)

// evidenceUpdatableColumns are the columns an evidence update may touch.
// case_id, collected_by_id and the ledger counters are not patchable.
var evidenceUpdatableColumns = []string{
	"type", "title", "description", "file_url", "file_type", "file_size",
	"metadata", "location", "collection_date", "tags", "updated_at",
}

// EvidenceRepository defines evidence and custody ledger persistence.
type EvidenceRepository interface {
	CreateForCase(ctx context.Context, ev *model.Evidence) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Evidence, error)
	FindDetail(ctx context.Context, id uuid.UUID) (*model.Evidence, error)
	IdentifierExists(ctx context.Context, identifier string) (bool, error)
	List(ctx context.Context, caseID *uuid.UUID, q query.ListQuery) ([]model.Evidence, int64, error)
	Update(ctx context.Context, id uuid.UUID, apply func(ev *model.Evidence) error, entry *model.CustodyEntry) (*model.Evidence, error)
	Delete(ctx context.Context, id uuid.UUID) (*model.Evidence, error)
	AppendAnalysis(ctx context.Context, id uuid.UUID, result *model.AnalysisResult, entry *model.CustodyEntry) error
}

type evidenceRepository struct {
	db *gorm.DB
}

// NewEvidenceRepository creates a new evidence repository.
func NewEvidenceRepository(db *gorm.DB) EvidenceRepository {
	return &evidenceRepository{db: db}
}

// CreateForCase inserts ev and increments the owning case's evidence_count in
// one transaction. gorm.ErrRecordNotFound is returned when the case is gone.
func (r *evidenceRepository) CreateForCase(ctx context.Context, ev *model.Evidence) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Case
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", ev.CaseID).First(&c).Error; err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(ev).Error; err != nil {
			return err
		}
		return tx.Model(&model.Case{}).Where("id = ?", ev.CaseID).
			UpdateColumn("evidence_count", gorm.Expr("evidence_count + ?", 1)).Error
	})
}

// FindByID finds an evidence item without its relations.
func (r *evidenceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Evidence, error) {
	var ev model.Evidence
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// FindDetail loads an evidence item with its case, collector, custody chain
// and analysis results. Chain and results come back in append order.
func (r *evidenceRepository) FindDetail(ctx context.Context, id uuid.UUID) (*model.Evidence, error) {
	var ev model.Evidence
	err := r.db.WithContext(ctx).
		Preload("Case").
		Preload("CollectedBy").
		Preload("Chain", func(db *gorm.DB) *gorm.DB { return db.Order("sequence") }).
		Preload("Chain.HandledBy").
		Preload("AnalysisResults", func(db *gorm.DB) *gorm.DB { return db.Order("sequence") }).
		Preload("AnalysisResults.Analyst").
		Where("id = ?", id).
		First(&ev).Error
	if err != nil {
		return nil, err
	}
	if ev.Chain == nil {
		ev.Chain = []model.CustodyEntry{}
	}
	if ev.AnalysisResults == nil {
		ev.AnalysisResults = []model.AnalysisResult{}
	}
	return &ev, nil
}

// IdentifierExists reports whether an evidence identifier is taken.
func (r *evidenceRepository) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Evidence{}).
		Where("identifier = ?", identifier).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns one page of evidence, optionally scoped to a case, with the
// collecting user resolved.
func (r *evidenceRepository) List(ctx context.Context, caseID *uuid.UUID, q query.ListQuery) ([]model.Evidence, int64, error) {
	base := r.db.WithContext(ctx).Model(&model.Evidence{})
	if caseID != nil {
		base = base.Where("case_id = ?", *caseID)
	}
	base = applyFilters(base, q)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	list := applyPage(base.Session(&gorm.Session{}), q)
	if len(q.Select) == 0 {
		list = list.Preload("CollectedBy")
	}
	var items []model.Evidence
	if err := list.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update locks the evidence row, applies the patch through apply and appends
// entry to the custody chain, all in one transaction.
func (r *evidenceRepository) Update(ctx context.Context, id uuid.UUID, apply func(ev *model.Evidence) error, entry *model.CustodyEntry) (*model.Evidence, error) {
	var ev model.Evidence
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockEvidence(tx, id, &ev); err != nil {
			return err
		}
		if err := apply(&ev); err != nil {
			return err
		}
		if err := tx.Model(&ev).Select(evidenceUpdatableColumns).Updates(&ev).Error; err != nil {
			return err
		}
		return appendCustody(tx, &ev, entry)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Delete removes an evidence item with its custody chain and analysis
// results and decrements the owning case's evidence_count. The deleted row
// is returned so the caller can dispose of its stored file.
func (r *evidenceRepository) Delete(ctx context.Context, id uuid.UUID) (*model.Evidence, error) {
	var ev model.Evidence
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockEvidence(tx, id, &ev); err != nil {
			return err
		}
		if err := tx.Where("evidence_id = ?", id).Delete(&model.CustodyEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("evidence_id = ?", id).Delete(&model.AnalysisResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&model.Evidence{}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Case{}).Where("id = ? AND evidence_count > 0", ev.CaseID).
			UpdateColumn("evidence_count", gorm.Expr("evidence_count - ?", 1)).Error
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// AppendAnalysis records result and its custody entry in one transaction.
func (r *evidenceRepository) AppendAnalysis(ctx context.Context, id uuid.UUID, result *model.AnalysisResult, entry *model.CustodyEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ev model.Evidence
		if err := lockEvidence(tx, id, &ev); err != nil {
			return err
		}

		ev.ResultCount++
		result.EvidenceID = ev.ID
		result.Sequence = ev.ResultCount
		if result.Timestamp.IsZero() {
			result.Timestamp = time.Now().UTC()
		}
		if err := tx.Omit(clause.Associations).Create(result).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Evidence{}).Where("id = ?", ev.ID).
			UpdateColumn("result_count", ev.ResultCount).Error; err != nil {
			return err
		}
		return appendCustody(tx, &ev, entry)
	})
}

func lockEvidence(tx *gorm.DB, id uuid.UUID, ev *model.Evidence) error {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(ev).Error
}

// appendCustody adds entry as the next link of ev's chain. ev must be locked
// by the surrounding transaction.
func appendCustody(tx *gorm.DB, ev *model.Evidence, entry *model.CustodyEntry) error {
	ev.CustodyCount++
	entry.EvidenceID = ev.ID
	entry.Sequence = ev.CustodyCount
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := tx.Omit(clause.Associations).Create(entry).Error; err != nil {
		return err
	}
	return tx.Model(&model.Evidence{}).Where("id = ?", ev.ID).
		UpdateColumn("custody_count", ev.CustodyCount).Error
}
