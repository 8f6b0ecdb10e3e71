package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusport/achievement-api/internal/dto"
	"github.com/campusport/achievement-api/internal/models"
	"github.com/campusport/achievement-api/internal/repository"
	appErrors "github.com/campusport/achievement-api/pkg/errors"
)

type claimRepoStub struct {
	claims     map[string]*models.AchievementClaim
	filter     models.ClaimFilter
	transition func(params repository.TransitionParams) error
}

func newClaimRepoStub() *claimRepoStub {
	return &claimRepoStub{claims: make(map[string]*models.AchievementClaim)}
}

func (m *claimRepoStub) Create(ctx context.Context, claim *models.AchievementClaim) error {
	if claim.ID == "" {
		claim.ID = "claim-" + claim.Title
	}
	if claim.Status == "" {
		claim.Status = models.ClaimStatusPending
	}
	copied := *claim
	m.claims[claim.ID] = &copied
	return nil
}

func (m *claimRepoStub) GetByID(ctx context.Context, id string) (*models.AchievementClaim, error) {
	if claim, ok := m.claims[id]; ok {
		copied := *claim
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *claimRepoStub) List(ctx context.Context, filter models.ClaimFilter) ([]models.AchievementClaim, error) {
	m.filter = filter
	result := make([]models.AchievementClaim, 0, len(m.claims))
	for _, claim := range m.claims {
		result = append(result, *claim)
	}
	return result, nil
}

func (m *claimRepoStub) Transition(ctx context.Context, params repository.TransitionParams) error {
	if m.transition != nil {
		return m.transition(params)
	}
	claim, ok := m.claims[params.ID]
	if !ok || claim.Status != models.ClaimStatusPending {
		return sql.ErrNoRows
	}
	claim.Status = params.NewStatus
	claim.ReviewedBy = &params.ReviewedBy
	claim.ReviewedAt = &params.ReviewedAt
	claim.ReviewComments = params.Comments
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:      "student-1",
		Role:        models.RoleStudent,
		Email:       "jane@demo.edu",
		FullName:    "Jane Student",
		Institution: "Demo University",
	}
}

func facultyClaims(id, institution string) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:      id,
		Role:        models.RoleFaculty,
		Email:       id + "@demo.edu",
		FullName:    "Dr. " + id,
		Institution: institution,
	}
}

func pendingClaim(id string) *models.AchievementClaim {
	return &models.AchievementClaim{
		ID:           id,
		StudentID:    "student-1",
		StudentName:  "Jane Student",
		StudentEmail: "jane@demo.edu",
		Institution:  "Demo University",
		Title:        "Hackathon Winner",
		Description:  "Won the campus hackathon",
		Date:         "2026-05-01",
		Category:     models.CategoryAward,
		Status:       models.ClaimStatusPending,
		SubmittedAt:  time.Now().UTC(),
	}
}

func TestClaimServiceSubmitDenormalizesActor(t *testing.T) {
	repo := newClaimRepoStub()
	audit := &auditStub{}
	svc := NewClaimService(repo, audit, nil)

	claim, err := svc.Submit(context.Background(), dto.SubmitClaimRequest{
		Title:       "Hackathon Winner",
		Description: "Won the campus hackathon",
		Date:        "2026-05-01",
		Category:    models.CategoryAward,
	}, studentClaims())
	require.NoError(t, err)
	require.Equal(t, models.ClaimStatusPending, claim.Status)
	require.Equal(t, "student-1", claim.StudentID)
	require.Equal(t, "Jane Student", claim.StudentName)
	require.Equal(t, "Demo University", claim.Institution)
	require.Nil(t, claim.ReviewedBy)
	require.Nil(t, claim.ReviewedAt)
	require.Len(t, audit.logs, 1)
}

func TestClaimServiceSubmitDefaultsCategory(t *testing.T) {
	repo := newClaimRepoStub()
	svc := NewClaimService(repo, &auditStub{}, nil)

	claim, err := svc.Submit(context.Background(), dto.SubmitClaimRequest{
		Title:       "First Aid Certificate",
		Description: "Completed certified training",
		Date:        "2026-03-10",
	}, studentClaims())
	require.NoError(t, err)
	require.Equal(t, models.CategoryOther, claim.Category)
}

func TestClaimServiceSubmitKeepsFreeFormDate(t *testing.T) {
	repo := newClaimRepoStub()
	svc := NewClaimService(repo, &auditStub{}, nil)

	// The date is opaque text, not a calendar value; it is stored verbatim.
	claim, err := svc.Submit(context.Background(), dto.SubmitClaimRequest{
		Title:       "Dean's List",
		Description: "Named to the dean's list",
		Date:        "Spring 2024",
	}, studentClaims())
	require.NoError(t, err)
	require.Equal(t, "Spring 2024", claim.Date)
	require.Equal(t, "Spring 2024", repo.claims[claim.ID].Date)
}

func TestClaimServiceSubmitValidation(t *testing.T) {
	repo := newClaimRepoStub()
	svc := NewClaimService(repo, &auditStub{}, nil, WithClaimLimits(ClaimLimits{
		MaxEvidenceFiles: 1,
		MaxEvidenceSize:  100,
	}))
	actor := studentClaims()

	cases := []struct {
		name string
		req  dto.SubmitClaimRequest
	}{
		{"missing title", dto.SubmitClaimRequest{Description: "d", Date: "2026-01-01"}},
		{"missing description", dto.SubmitClaimRequest{Title: "t", Date: "2026-01-01"}},
		{"missing date", dto.SubmitClaimRequest{Title: "t", Description: "d"}},
		{"bad category", dto.SubmitClaimRequest{Title: "t", Description: "d", Date: "2026-01-01", Category: "MISC"}},
		{"too many evidence files", dto.SubmitClaimRequest{
			Title: "t", Description: "d", Date: "2026-01-01",
			Evidence: []dto.EvidenceRef{
				{StorageRef: "a", OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: 10},
				{StorageRef: "b", OriginalName: "b.pdf", MimeType: "application/pdf", SizeBytes: 10},
			},
		}},
		{"zero-size evidence", dto.SubmitClaimRequest{
			Title: "t", Description: "d", Date: "2026-01-01",
			Evidence: []dto.EvidenceRef{{StorageRef: "a", OriginalName: "a.pdf", MimeType: "application/pdf"}},
		}},
		{"missing mime type", dto.SubmitClaimRequest{
			Title: "t", Description: "d", Date: "2026-01-01",
			Evidence: []dto.EvidenceRef{{StorageRef: "a", OriginalName: "a.pdf", SizeBytes: 10}},
		}},
		{"oversized evidence", dto.SubmitClaimRequest{
			Title: "t", Description: "d", Date: "2026-01-01",
			Evidence: []dto.EvidenceRef{{StorageRef: "a", OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: 200}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tc.req, actor)
			require.True(t, appErrors.HasCode(err, appErrors.ErrValidation), "expected validation error, got %v", err)
			require.Empty(t, repo.claims)
		})
	}
}

func TestClaimServiceSubmitRequiresStudentRole(t *testing.T) {
	svc := NewClaimService(newClaimRepoStub(), &auditStub{}, nil)

	_, err := svc.Submit(context.Background(), dto.SubmitClaimRequest{
		Title: "t", Description: "d", Date: "2026-01-01",
	}, facultyClaims("faculty-1", "Demo University"))
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestClaimServiceReviewVerify(t *testing.T) {
	repo := newClaimRepoStub()
	repo.claims["claim-1"] = pendingClaim("claim-1")
	svc := NewClaimService(repo, &auditStub{}, nil)

	claim, err := svc.Review(context.Background(), "claim-1", dto.ReviewClaimRequest{
		Decision: models.DecisionVerify,
		Comments: "evidence checks out",
	}, facultyClaims("faculty-1", "Demo University"))
	require.NoError(t, err)
	require.Equal(t, models.ClaimStatusVerified, claim.Status)
	require.NotNil(t, claim.ReviewedBy)
	require.Equal(t, "faculty-1", *claim.ReviewedBy)
	require.NotNil(t, claim.ReviewedAt)
	require.NotNil(t, claim.ReviewComments)
}

func TestClaimServiceReviewWrongInstitution(t *testing.T) {
	repo := newClaimRepoStub()
	repo.claims["claim-1"] = pendingClaim("claim-1")
	svc := NewClaimService(repo, &auditStub{}, nil)

	_, err := svc.Review(context.Background(), "claim-1", dto.ReviewClaimRequest{
		Decision: models.DecisionVerify,
	}, facultyClaims("faculty-9", "Other College"))
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
	require.Equal(t, models.ClaimStatusPending, repo.claims["claim-1"].Status)

	// Scope is enforced regardless of claim status.
	repo.claims["claim-1"].Status = models.ClaimStatusVerified
	_, err = svc.Review(context.Background(), "claim-1", dto.ReviewClaimRequest{
		Decision: models.DecisionReject,
	}, facultyClaims("faculty-9", "Other College"))
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestClaimServiceReviewRequiresReviewerRole(t *testing.T) {
	repo := newClaimRepoStub()
	repo.claims["claim-1"] = pendingClaim("claim-1")
	svc := NewClaimService(repo, &auditStub{}, nil)

	_, err := svc.Review(context.Background(), "claim-1", dto.ReviewClaimRequest{
		Decision: models.DecisionVerify,
	}, studentClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestClaimServiceReviewAlreadyDecided(t *testing.T) {
	repo := newClaimRepoStub()
	decided := pendingClaim("claim-1")
	reviewer := "faculty-1"
	now := time.Now().UTC()
	decided.Status = models.ClaimStatusVerified
	decided.ReviewedBy = &reviewer
	decided.ReviewedAt = &now
	repo.claims["claim-1"] = decided
	svc := NewClaimService(repo, &auditStub{}, nil)

	current, err := svc.Review(context.Background(), "claim-1", dto.ReviewClaimRequest{
		Decision: models.DecisionReject,
	}, facultyClaims("faculty-2", "Demo University"))
	require.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	require.NotNil(t, current)
	require.Equal(t, models.ClaimStatusVerified, current.Status)
	require.Equal(t, "faculty-1", *current.ReviewedBy)
}

func TestClaimServiceReviewLostRace(t *testing.T) {
	repo := newClaimRepoStub()
	repo.claims["claim-1"] = pendingClaim("claim-1")
	// Simulate a concurrent reviewer winning between the read and the CAS.
	repo.transition = func(params repository.TransitionParams) error {
		winner := "faculty-1"
		now := time.Now().UTC()
		repo.claims["claim-1"].Status = models.ClaimStatusVerified
		repo.claims["claim-1"].ReviewedBy = &winner
		repo.claims["claim-1"].ReviewedAt = &now
		return sql.ErrNoRows
	}
	svc := NewClaimService(repo, &auditStub{}, nil)

	current, err := svc.Review(context.Background(), "claim-1", dto.ReviewClaimRequest{
		Decision: models.DecisionReject,
	}, facultyClaims("faculty-2", "Demo University"))
	require.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	require.NotNil(t, current)
	require.Equal(t, models.ClaimStatusVerified, current.Status)
	require.Equal(t, "faculty-1", *current.ReviewedBy)
}

func TestClaimServiceReviewNotFound(t *testing.T) {
	svc := NewClaimService(newClaimRepoStub(), &auditStub{}, nil)

	_, err := svc.Review(context.Background(), "missing", dto.ReviewClaimRequest{
		Decision: models.DecisionVerify,
	}, facultyClaims("faculty-1", "Demo University"))
	require.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestClaimServiceListScoping(t *testing.T) {
	repo := newClaimRepoStub()
	repo.claims["claim-1"] = pendingClaim("claim-1")
	svc := NewClaimService(repo, &auditStub{}, nil)

	_, err := svc.List(context.Background(), dto.ClaimQuery{}, studentClaims())
	require.NoError(t, err)
	require.Equal(t, "student-1", repo.filter.StudentID)
	require.Empty(t, repo.filter.Institution)

	_, err = svc.List(context.Background(), dto.ClaimQuery{}, facultyClaims("faculty-1", "Demo University"))
	require.NoError(t, err)
	require.Equal(t, "Demo University", repo.filter.Institution)
	require.Empty(t, repo.filter.StudentID)
}

func TestClaimServiceGetVisibility(t *testing.T) {
	repo := newClaimRepoStub()
	repo.claims["claim-1"] = pendingClaim("claim-1")
	svc := NewClaimService(repo, &auditStub{}, nil)

	claim, err := svc.Get(context.Background(), "claim-1", studentClaims())
	require.NoError(t, err)
	require.Equal(t, "claim-1", claim.ID)

	_, err = svc.Get(context.Background(), "claim-1", facultyClaims("faculty-1", "Other College"))
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	other := studentClaims()
	other.UserID = "student-2"
	_, err = svc.Get(context.Background(), "claim-1", other)
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}
