package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/campusport/achievement-api/internal/dto"
	"github.com/campusport/achievement-api/internal/models"
	"github.com/campusport/achievement-api/internal/repository"
	appErrors "github.com/campusport/achievement-api/pkg/errors"
)

type claimStore interface {
	Create(ctx context.Context, claim *models.AchievementClaim) error
	GetByID(ctx context.Context, id string) (*models.AchievementClaim, error)
	List(ctx context.Context, filter models.ClaimFilter) ([]models.AchievementClaim, error)
	Transition(ctx context.Context, params repository.TransitionParams) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type claimListCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string)
}

type claimMetrics interface {
	RecordClaimSubmitted(category string)
	RecordReviewDecision(outcome string)
}

// ClaimLimits bounds submissions; both are deployment configuration, not
// protocol constants.
type ClaimLimits struct {
	MaxEvidenceFiles    int
	MaxEvidenceSize     int64
	AllowedEvidenceMIME []string
}

// ClaimService owns the achievement verification workflow: students submit
// claims, reviewers decide them exactly once.
type ClaimService struct {
	repo    claimStore
	audit   auditLogger
	cache   claimListCache
	metrics claimMetrics
	logger  *zap.Logger
	limits  ClaimLimits
	listTTL time.Duration
}

// ClaimServiceOption configures the service.
type ClaimServiceOption func(*ClaimService)

// WithClaimCache enables claim list caching.
func WithClaimCache(cache claimListCache, ttl time.Duration) ClaimServiceOption {
	return func(s *ClaimService) {
		s.cache = cache
		if ttl > 0 {
			s.listTTL = ttl
		}
	}
}

// WithClaimMetrics wires workflow counters.
func WithClaimMetrics(metrics claimMetrics) ClaimServiceOption {
	return func(s *ClaimService) {
		s.metrics = metrics
	}
}

// WithClaimLimits overrides submission bounds.
func WithClaimLimits(limits ClaimLimits) ClaimServiceOption {
	return func(s *ClaimService) {
		s.limits = limits
	}
}

// NewClaimService constructs the service with defaults.
func NewClaimService(repo claimStore, audit auditLogger, logger *zap.Logger, opts ...ClaimServiceOption) *ClaimService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ClaimService{
		repo:   repo,
		audit:  audit,
		logger: logger,
		limits: ClaimLimits{
			MaxEvidenceFiles: 5,
			MaxEvidenceSize:  10 * 1024 * 1024,
		},
		listTTL: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit validates and creates a new claim in the PENDING state. Identity
// fields are denormalized from the verified actor, never from the payload.
func (s *ClaimService) Submit(ctx context.Context, req dto.SubmitClaimRequest, actor *models.JWTClaims) (*models.AchievementClaim, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students submit achievement claims")
	}
	if err := s.validateSubmission(&req); err != nil {
		return nil, err
	}

	evidence := make(models.EvidenceList, 0, len(req.Evidence))
	now := time.Now().UTC()
	for _, ref := range req.Evidence {
		evidence = append(evidence, models.EvidenceFile{
			StorageRef:   ref.StorageRef,
			OriginalName: ref.OriginalName,
			MimeType:     ref.MimeType,
			SizeBytes:    ref.SizeBytes,
			UploadedAt:   now,
		})
	}

	claim := &models.AchievementClaim{
		StudentID:     actor.UserID,
		StudentName:   actor.FullName,
		StudentEmail:  actor.Email,
		Institution:   actor.Institution,
		Title:         strings.TrimSpace(req.Title),
		Description:   strings.TrimSpace(req.Description),
		Date:          strings.TrimSpace(req.Date),
		Category:      req.Category,
		EvidenceFiles: evidence,
		Status:        models.ClaimStatusPending,
	}
	if err := s.repo.Create(ctx, claim); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create claim")
	}

	s.invalidateLists(ctx, claim)
	if s.metrics != nil {
		s.metrics.RecordClaimSubmitted(string(claim.Category))
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &claim.StudentID,
		Action:     models.AuditActionClaimSubmit,
		Resource:   "achievement_claim",
		ResourceID: &claim.ID,
		NewValues:  marshalAudit(claim),
	})
	return claim, nil
}

// List returns the claim set visible to the actor: students see their own
// claims, reviewers the institution-wide set.
func (s *ClaimService) List(ctx context.Context, query dto.ClaimQuery, actor *models.JWTClaims) ([]models.AchievementClaim, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	filter := models.ClaimFilter{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	var cacheKey string
	switch {
	case actor.Role == models.RoleStudent:
		filter.StudentID = actor.UserID
		cacheKey = repository.StudentClaimsKey(actor.UserID)
	case actor.Role.Reviewer():
		filter.Institution = actor.Institution
		cacheKey = repository.InstitutionClaimsKey(actor.Institution)
	default:
		return nil, appErrors.ErrForbidden
	}

	cacheable := s.cache != nil && len(query.Status) == 0 && query.Offset == 0 && query.Limit == 0
	if cacheable {
		var cached []models.AchievementClaim
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	claims, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list claims")
	}

	if cacheable {
		if err := s.cache.Set(ctx, cacheKey, claims, s.listTTL); err != nil {
			s.logger.Warn("claim list cache write failed", zap.Error(err))
		}
	}
	return claims, nil
}

// Get returns a claim enforcing visibility: the owning student, or a reviewer
// from the same institution.
func (s *ClaimService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.AchievementClaim, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	claim, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claim")
	}
	if !s.visible(claim, actor) {
		return nil, appErrors.ErrForbidden
	}
	return claim, nil
}

// Review applies a reviewer decision as an idempotent conditional transition.
// On a lost race it returns the current authoritative claim together with a
// CONFLICT error so the caller reconciles instead of assuming nothing
// happened.
func (s *ClaimService) Review(ctx context.Context, id string, req dto.ReviewClaimRequest, actor *models.JWTClaims) (*models.AchievementClaim, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.Reviewer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reviewing requires a faculty role")
	}
	newStatus, ok := req.Decision.Status()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be VERIFY or REJECT")
	}

	claim, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claim")
	}
	// Scope check comes first: a reviewer from the wrong institution is
	// rejected regardless of claim status.
	if claim.Institution != actor.Institution {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "claim belongs to another institution")
	}
	if claim.Status.Terminal() {
		s.recordReview("conflict")
		return claim, appErrors.Clone(appErrors.ErrConflict, "claim already decided")
	}

	now := time.Now().UTC()
	params := repository.TransitionParams{
		ID:         claim.ID,
		NewStatus:  newStatus,
		ReviewedBy: actor.UserID,
		ReviewedAt: now,
		Comments:   optionalString(req.Comments),
	}
	if err := s.repo.Transition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Raced with another reviewer between the read and the CAS.
			current, getErr := s.repo.GetByID(ctx, id)
			if getErr != nil {
				return nil, appErrors.Wrap(getErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload claim after conflict")
			}
			s.recordReview("conflict")
			return current, appErrors.Clone(appErrors.ErrConflict, "claim already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply review")
	}

	claim.Status = newStatus
	claim.ReviewedBy = &params.ReviewedBy
	claim.ReviewedAt = &now
	claim.ReviewComments = params.Comments
	claim.UpdatedAt = now

	s.invalidateLists(ctx, claim)
	s.recordReview(strings.ToLower(string(newStatus)))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &params.ReviewedBy,
		Action:     models.AuditActionClaimReview,
		Resource:   "achievement_claim",
		ResourceID: &claim.ID,
		NewValues:  marshalAudit(claim),
	})
	return claim, nil
}

func (s *ClaimService) validateSubmission(req *dto.SubmitClaimRequest) error {
	var missing []string
	if strings.TrimSpace(req.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(req.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(req.Date) == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")))
	}

	if req.Category == "" {
		req.Category = models.CategoryOther
	} else {
		req.Category = models.ClaimCategory(strings.ToUpper(string(req.Category)))
	}
	if !models.ValidCategory(req.Category) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported category: %s", req.Category))
	}

	if s.limits.MaxEvidenceFiles > 0 && len(req.Evidence) > s.limits.MaxEvidenceFiles {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d evidence files allowed", s.limits.MaxEvidenceFiles))
	}
	for i, ref := range req.Evidence {
		if ref.StorageRef == "" {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("evidence[%d]: storageRef is required", i))
		}
		if ref.SizeBytes <= 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("evidence[%d]: size must be positive", i))
		}
		if strings.TrimSpace(ref.MimeType) == "" {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("evidence[%d]: mime type is required", i))
		}
		if s.limits.MaxEvidenceSize > 0 && ref.SizeBytes > s.limits.MaxEvidenceSize {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("evidence[%d]: exceeds max size of %d bytes", i, s.limits.MaxEvidenceSize))
		}
		if len(s.limits.AllowedEvidenceMIME) > 0 && !mimeAllowed(s.limits.AllowedEvidenceMIME, ref.MimeType) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("evidence[%d]: mime type %s not allowed", i, ref.MimeType))
		}
	}
	return nil
}

func (s *ClaimService) visible(claim *models.AchievementClaim, actor *models.JWTClaims) bool {
	if actor.Role == models.RoleStudent {
		return claim.StudentID == actor.UserID
	}
	if actor.Role.Reviewer() {
		return claim.Institution == actor.Institution
	}
	return false
}

func (s *ClaimService) invalidateLists(ctx context.Context, claim *models.AchievementClaim) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx,
		repository.StudentClaimsKey(claim.StudentID),
		repository.InstitutionClaimsKey(claim.Institution),
	)
}

func (s *ClaimService) recordReview(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordReviewDecision(outcome)
	}
}

func (s *ClaimService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "claim-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func marshalAudit(claim *models.AchievementClaim) types.JSONText {
	raw, err := json.Marshal(claim)
	if err != nil {
		return nil
	}
	return types.JSONText(raw)
}

func mimeAllowed(allowed []string, mime string) bool {
	for _, m := range allowed {
		if strings.EqualFold(m, mime) {
			return true
		}
	}
	return false
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
