package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusport/achievement-api/internal/dto"
	"github.com/campusport/achievement-api/internal/models"
	appErrors "github.com/campusport/achievement-api/pkg/errors"
	"github.com/campusport/achievement-api/pkg/response"
)

type claimService interface {
	Submit(ctx context.Context, req dto.SubmitClaimRequest, actor *models.JWTClaims) (*models.AchievementClaim, error)
	List(ctx context.Context, query dto.ClaimQuery, actor *models.JWTClaims) ([]models.AchievementClaim, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.AchievementClaim, error)
	Review(ctx context.Context, id string, req dto.ReviewClaimRequest, actor *models.JWTClaims) (*models.AchievementClaim, error)
}

// ClaimHandler exposes REST endpoints for the achievement verification
// workflow.
type ClaimHandler struct {
	service claimService
}

// NewClaimHandler constructs the handler.
func NewClaimHandler(service claimService) *ClaimHandler {
	return &ClaimHandler{service: service}
}

// Submit godoc
// @Summary Submit an achievement claim
// @Tags Claims
// @Accept json
// @Produce json
// @Param payload body dto.SubmitClaimRequest true "Claim payload"
// @Success 201 {object} response.Envelope
// @Router /claims [post]
func (h *ClaimHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid claim payload"))
		return
	}
	claim, err := h.service.Submit(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, claim)
}

// List godoc
// @Summary List claims visible to the caller
// @Tags Claims
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /claims [get]
func (h *ClaimHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ClaimQuery{}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ClaimStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ClaimStatus(part))
		}
		query.Status = statuses
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		query.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		query.Offset = offset
	}

	result, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Get godoc
// @Summary Get claim detail
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Router /claims/{id} [get]
func (h *ClaimHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	claim, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claim)
}

// Review godoc
// @Summary Review a pending claim
// @Tags Claims
// @Accept json
// @Produce json
// @Param id path string true "Claim ID"
// @Param payload body dto.ReviewClaimRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Claim already decided; data carries the current claim"
// @Router /claims/{id}/review [post]
func (h *ClaimHandler) Review(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return
	}
	req.Decision = models.ReviewDecision(strings.ToUpper(string(req.Decision)))

	claim, err := h.service.Review(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		// A lost review race is not a dead end: return the winning claim so
		// the caller can reconcile its view.
		if appErrors.HasCode(err, appErrors.ErrConflict) && claim != nil {
			response.Conflict(c, err, claim)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claim)
}
