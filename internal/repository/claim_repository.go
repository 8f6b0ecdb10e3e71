package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusport/achievement-api/internal/models"
)

const claimColumns = `id, student_id, student_name, student_email, institution, title, description,
       achieved_on, category, evidence_files, status, reviewed_by, reviewed_at, review_comments,
       submitted_at, created_at, updated_at`

// ClaimRepository persists achievement claims. The table is append-only:
// rows are inserted once and mutated at most once by Transition.
type ClaimRepository struct {
	db *sqlx.DB
}

// NewClaimRepository constructs the repository.
func NewClaimRepository(db *sqlx.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Create inserts a new claim row in the PENDING state.
func (r *ClaimRepository) Create(ctx context.Context, claim *models.AchievementClaim) error {
	now := time.Now().UTC()
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	if claim.Status == "" {
		claim.Status = models.ClaimStatusPending
	}
	if claim.SubmittedAt.IsZero() {
		claim.SubmittedAt = now
	}
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = now
	}
	claim.UpdatedAt = now
	const query = `INSERT INTO achievement_claims
	(id, student_id, student_name, student_email, institution, title, description, achieved_on,
	 category, evidence_files, status, reviewed_by, reviewed_at, review_comments, submitted_at, created_at, updated_at)
	VALUES (:id, :student_id, :student_name, :student_email, :institution, :title, :description, :achieved_on,
	 :category, :evidence_files, :status, :reviewed_by, :reviewed_at, :review_comments, :submitted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, claim); err != nil {
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

// GetByID fetches a claim by identifier.
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*models.AchievementClaim, error) {
	query := fmt.Sprintf(`SELECT %s FROM achievement_claims WHERE id = $1`, claimColumns)
	var claim models.AchievementClaim
	if err := r.db.GetContext(ctx, &claim, query, id); err != nil {
		return nil, err
	}
	return &claim, nil
}

// List returns claims matching the filter, newest submissions first.
func (r *ClaimRepository) List(ctx context.Context, filter models.ClaimFilter) ([]models.AchievementClaim, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM achievement_claims`, claimColumns))

	conditions := make([]string, 0, 3)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Institution != "" {
		args = append(args, filter.Institution)
		conditions = append(conditions, fmt.Sprintf("institution = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var claims []models.AchievementClaim
	if err := r.db.SelectContext(ctx, &claims, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}

// TransitionParams groups the columns touched by a review decision.
type TransitionParams struct {
	ID         string
	NewStatus  models.ClaimStatus
	ReviewedBy string
	ReviewedAt time.Time
	Comments   *string
}

// Transition applies a review decision as a compare-and-swap: the UPDATE only
// matches while the stored status is still PENDING. Zero rows affected means
// the claim either does not exist or already left PENDING; the caller
// disambiguates by re-fetching.
func (r *ClaimRepository) Transition(ctx context.Context, params TransitionParams) error {
	query := fmt.Sprintf(`UPDATE achievement_claims
	SET status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at,
	    review_comments = :review_comments, updated_at = :updated_at
	WHERE id = :id AND status = '%s'`, models.ClaimStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":              params.ID,
		"status":          params.NewStatus,
		"reviewed_by":     params.ReviewedBy,
		"reviewed_at":     params.ReviewedAt,
		"review_comments": params.Comments,
		"updated_at":      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("transition claim: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
