package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crimesleuth/internal/auth"
	apperrors "crimesleuth/internal/errors"
	"crimesleuth/internal/logging"
	"crimesleuth/internal/model"
	"crimesleuth/internal/query"
	"crimesleuth/internal/repository"
	"crimesleuth/internal/storage"
	"crimesleuth/internal/testutil"
)

type scenario struct {
	cases    CaseService
	evidence EvidenceService
	store    *storage.DiskStore
	caseRepo repository.CaseRepository
}

func newScenario(t *testing.T) (*scenario, func(name string, role model.Role) auth.Principal) {
	t.Helper()

	gdb := testutil.NewDB(t)
	store, err := storage.NewDiskStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(gdb)
	caseRepo := repository.NewCaseRepository(gdb)
	evidenceRepo := repository.NewEvidenceRepository(gdb)

	s := &scenario{
		cases:    NewCaseService(caseRepo, userRepo, nil, logging.Discard()),
		evidence: NewEvidenceService(evidenceRepo, caseRepo, store, nil, nil, logging.Discard()),
		store:    store,
		caseRepo: caseRepo,
	}
	user := func(name string, role model.Role) auth.Principal {
		u := testutil.CreateUser(t, gdb, name, role)
		return auth.Principal{ID: u.ID, Email: u.Email, Role: u.Role}
	}
	return s, user
}

func TestScenario_EvidenceLifecycle(t *testing.T) {
	ctx := context.Background()
	s, user := newScenario(t)

	investigator := user("investigator", model.RoleInvestigator)
	analyst := user("analyst", model.RoleAnalyst)
	supervisor := user("supervisor", model.RoleSupervisor)

	c, err := s.cases.CreateCase(ctx, investigator, CaseInput{
		CaseNumber:  "CASE-001",
		Title:       "Warehouse burglary",
		Description: "Rear door forced overnight",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, c.EvidenceCount)
	assert.Equal(t, model.CaseStatusOpen, c.Status)
	assert.Equal(t, model.CasePriorityMedium, c.Priority)

	ev, err := s.evidence.AddEvidence(ctx, investigator, c.ID, EvidenceInput{
		Identifier: "EV-1",
		Type:       model.EvidenceTypeImage,
		Title:      "Photo",
	}, &FileUpload{Filename: "door.JPG", ContentType: "image/jpeg", Size: 4, Body: strings.NewReader("jpeg")})
	require.NoError(t, err)
	assert.Empty(t, ev.Chain)
	assert.True(t, strings.HasPrefix(ev.FileURL, "/uploads/evidence/"+c.ID.String()+"/"))
	assert.True(t, strings.HasSuffix(ev.FileURL, ".jpg"))

	detail, err := s.cases.GetCase(ctx, analyst, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.EvidenceCount)
	require.Len(t, detail.Evidence, 1)
	assert.Equal(t, "EV-1", detail.Evidence[0].Identifier)

	updated, err := s.evidence.UpdateEvidence(ctx, analyst, ev.ID, EvidenceUpdate{
		Title: strPtr("Photo of rear door"),
		Notes: "relabeled",
	})
	require.NoError(t, err)
	assert.Equal(t, "Photo of rear door", updated.Title)
	require.Len(t, updated.Chain, 1)
	assert.Equal(t, 1, updated.Chain[0].Sequence)
	assert.Equal(t, analyst.ID, updated.Chain[0].HandledByID)
	assert.Equal(t, model.CustodyActionUpdated, updated.Chain[0].Action)
	assert.Equal(t, "relabeled", updated.Chain[0].Notes)

	confidence := decimal.RequireFromString("0.92")
	analyzed, err := s.evidence.Analyze(ctx, analyst, ev.ID, AnalysisInput{
		AnalysisType: "forensic",
		Result:       "Tool marks consistent with crowbar",
		Confidence:   &confidence,
	})
	require.NoError(t, err)
	require.Len(t, analyzed.Chain, 2)
	assert.Equal(t, model.CustodyActionAnalyzed, analyzed.Chain[1].Action)
	assert.Equal(t, "Analysis of type forensic conducted", analyzed.Chain[1].Notes)
	assert.Equal(t, updated.Chain[0].ID, analyzed.Chain[0].ID, "earlier entries are unchanged")
	require.Len(t, analyzed.AnalysisResults, 1)
	assert.True(t, analyzed.AnalysisResults[0].Confidence.Equal(confidence))

	_, err = s.evidence.UpdateEvidence(ctx, analyst, ev.ID, EvidenceUpdate{Chain: []byte(`[]`)})
	assert.ErrorIs(t, err, apperrors.ErrChainImmutable)

	err = s.evidence.DeleteEvidence(ctx, analyst, ev.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, s.evidence.DeleteEvidence(ctx, supervisor, ev.ID))

	detail, err = s.cases.GetCase(ctx, investigator, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, detail.EvidenceCount)
	assert.Empty(t, detail.Evidence)

	_, err = s.store.Open(ctx, strings.TrimPrefix(ev.FileURL, "/uploads/"))
	assert.Error(t, err, "stored file removed with the evidence")

	_, err = s.evidence.GetEvidence(ctx, investigator, ev.ID)
	assert.ErrorIs(t, err, apperrors.ErrEvidenceNotFound)
}

func TestScenario_CountMatchesEvidenceRows(t *testing.T) {
	ctx := context.Background()
	s, user := newScenario(t)
	investigator := user("investigator", model.RoleInvestigator)
	admin := user("admin", model.RoleAdmin)

	c, err := s.cases.CreateCase(ctx, investigator, CaseInput{CaseNumber: "CASE-002", Title: "Fraud", Description: "Invoices"})
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, identifier := range []string{"EV-10", "EV-11", "EV-12"} {
		ev, err := s.evidence.AddEvidence(ctx, investigator, c.ID, EvidenceInput{
			Identifier: identifier,
			Type:       model.EvidenceTypeDocument,
			Title:      "Invoice " + identifier,
		}, nil)
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}

	_, err = s.evidence.AddEvidence(ctx, investigator, c.ID, EvidenceInput{Identifier: "EV-10", Type: model.EvidenceTypeDocument, Title: "dup"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEvidenceID)

	require.NoError(t, s.evidence.DeleteEvidence(ctx, admin, ids[1]))

	q, err := query.Parse(nil, repository.EvidenceQuerySchema, "collection_date")
	require.NoError(t, err)
	page, err := s.evidence.ListEvidence(ctx, investigator, &c.ID, q)
	require.NoError(t, err)

	got, err := s.caseRepo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(got.EvidenceCount), page.Total)
	assert.Equal(t, 2, got.EvidenceCount)

	err = s.cases.DeleteCase(ctx, investigator, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrCaseHasEvidence)
}

func TestScenario_NonCreatorCannotDeleteCase(t *testing.T) {
	ctx := context.Background()
	s, user := newScenario(t)
	creator := user("creator", model.RoleInvestigator)
	other := user("other", model.RoleInvestigator)

	c, err := s.cases.CreateCase(ctx, creator, CaseInput{CaseNumber: "CASE-003", Title: "Arson", Description: "Shed fire"})
	require.NoError(t, err)

	err = s.cases.DeleteCase(ctx, other, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = s.cases.UpdateCase(ctx, other, c.ID, CaseUpdate{Title: strPtr("Hijacked")})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	got, err := s.caseRepo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Arson", got.Title)

	require.NoError(t, s.cases.DeleteCase(ctx, creator, c.ID))
	_, err = s.cases.GetCase(ctx, creator, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrCaseNotFound)
}

func TestScenario_StoredFileReadable(t *testing.T) {
	ctx := context.Background()
	s, user := newScenario(t)
	investigator := user("investigator", model.RoleInvestigator)

	c, err := s.cases.CreateCase(ctx, investigator, CaseInput{CaseNumber: "CASE-004", Title: "Theft", Description: "Bike"})
	require.NoError(t, err)

	ev, err := s.evidence.AddEvidence(ctx, investigator, c.ID, EvidenceInput{Identifier: "EV-40", Type: model.EvidenceTypeImage, Title: "CCTV still"},
		&FileUpload{Filename: "still.png", ContentType: "image/png", Size: 5, Body: strings.NewReader("frame")})
	require.NoError(t, err)
	assert.Equal(t, int64(5), ev.FileSize)
	assert.Equal(t, "image/png", ev.FileType)

	rc, err := s.store.Open(ctx, strings.TrimPrefix(ev.FileURL, "/uploads/"))
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(data))
}
