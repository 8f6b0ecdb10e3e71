package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campusport/achievement-api/internal/models"
)

func newClaimRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func claimRows(id string, status models.ClaimStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "student_name", "student_email", "institution", "title", "description",
		"achieved_on", "category", "evidence_files", "status", "reviewed_by", "reviewed_at",
		"review_comments", "submitted_at", "created_at", "updated_at",
	}).AddRow(id, "student-1", "Jane Student", "jane@demo.edu", "Demo University", "Hackathon Winner",
		"Won the campus hackathon", "2026-05-01", "AWARD", `[]`, string(status), nil, nil, nil,
		time.Now(), time.Now(), time.Now())
}

func TestClaimRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newClaimRepoMock(t)
	defer cleanup()

	repo := NewClaimRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO achievement_claims")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	claim := &models.AchievementClaim{
		StudentID:    "student-1",
		StudentName:  "Jane Student",
		StudentEmail: "jane@demo.edu",
		Institution:  "Demo University",
		Title:        "Hackathon Winner",
		Description:  "Won the campus hackathon",
		Date:         "2026-05-01",
		Category:     models.CategoryAward,
	}
	require.NoError(t, repo.Create(context.Background(), claim))
	require.NotEmpty(t, claim.ID)
	require.Equal(t, models.ClaimStatusPending, claim.Status)
	require.False(t, claim.SubmittedAt.IsZero())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, student_name")).
		WithArgs(claim.ID).
		WillReturnRows(claimRows(claim.ID, models.ClaimStatusPending))

	found, err := repo.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	require.Equal(t, claim.ID, found.ID)
	require.Equal(t, models.ClaimStatusPending, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newClaimRepoMock(t)
	defer cleanup()

	repo := NewClaimRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, student_name")).
		WithArgs("Demo University", "PENDING").
		WillReturnRows(claimRows("claim-1", models.ClaimStatusPending))

	list, err := repo.List(context.Background(), models.ClaimFilter{
		Institution: "Demo University",
		Status:      []models.ClaimStatus{models.ClaimStatusPending},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "claim-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newClaimRepoMock(t)
	defer cleanup()

	repo := NewClaimRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, student_name")).
		WithArgs("student-1").
		WillReturnRows(claimRows("claim-1", models.ClaimStatusVerified))

	list, err := repo.List(context.Background(), models.ClaimFilter{StudentID: "student-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newClaimRepoMock(t)
	defer cleanup()

	repo := NewClaimRepository(db)
	now := time.Now().UTC()
	comments := "evidence checks out"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE achievement_claims")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.Transition(context.Background(), TransitionParams{
		ID:         "claim-1",
		NewStatus:  models.ClaimStatusVerified,
		ReviewedBy: "faculty-1",
		ReviewedAt: now,
		Comments:   &comments,
	})
	require.NoError(t, err)

	// The same update against an already-decided claim matches no rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE achievement_claims")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.Transition(context.Background(), TransitionParams{
		ID:         "claim-1",
		NewStatus:  models.ClaimStatusRejected,
		ReviewedBy: "faculty-2",
		ReviewedAt: now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
