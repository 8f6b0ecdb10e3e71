package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campusport/achievement-api/internal/dto"
	"github.com/campusport/achievement-api/internal/middleware"
	"github.com/campusport/achievement-api/internal/models"
	appErrors "github.com/campusport/achievement-api/pkg/errors"
)

type claimServiceMock struct {
	submitResp *models.AchievementClaim
	submitErr  error
	listResp   []models.AchievementClaim
	listErr    error
	getResp    *models.AchievementClaim
	getErr     error
	reviewResp *models.AchievementClaim
	reviewErr  error
	lastQuery  dto.ClaimQuery
	lastReview dto.ReviewClaimRequest
}

func (m *claimServiceMock) Submit(ctx context.Context, req dto.SubmitClaimRequest, actor *models.JWTClaims) (*models.AchievementClaim, error) {
	return m.submitResp, m.submitErr
}

func (m *claimServiceMock) List(ctx context.Context, query dto.ClaimQuery, actor *models.JWTClaims) ([]models.AchievementClaim, error) {
	m.lastQuery = query
	return m.listResp, m.listErr
}

func (m *claimServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.AchievementClaim, error) {
	return m.getResp, m.getErr
}

func (m *claimServiceMock) Review(ctx context.Context, id string, req dto.ReviewClaimRequest, actor *models.JWTClaims) (*models.AchievementClaim, error) {
	m.lastReview = req
	return m.reviewResp, m.reviewErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func setActor(c *gin.Context, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{
		UserID:      "user-1",
		Role:        role,
		Institution: "Demo University",
	})
}

func TestClaimHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &claimServiceMock{
		submitResp: &models.AchievementClaim{ID: "claim-1", Status: models.ClaimStatusPending},
	}
	h := NewClaimHandler(mockSvc)

	payload, _ := json.Marshal(dto.SubmitClaimRequest{
		Title:       "Hackathon Winner",
		Description: "Won the campus hackathon",
		Date:        "2026-05-01",
		Category:    models.CategoryAward,
	})
	c, w := newGinContext(http.MethodPost, "/claims", payload)
	setActor(c, models.RoleStudent)

	h.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.AchievementClaim `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "claim-1", envelope.Data.ID)
	require.Equal(t, models.ClaimStatusPending, envelope.Data.Status)
}

func TestClaimHandlerSubmitRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewClaimHandler(&claimServiceMock{})

	c, w := newGinContext(http.MethodPost, "/claims", []byte(`{}`))
	h.Submit(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimHandlerListParsesStatusFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &claimServiceMock{listResp: []models.AchievementClaim{}}
	h := NewClaimHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/claims?status=pending,verified&limit=10", nil)
	setActor(c, models.RoleFaculty)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []models.ClaimStatus{models.ClaimStatusPending, models.ClaimStatusVerified}, mockSvc.lastQuery.Status)
	require.Equal(t, 10, mockSvc.lastQuery.Limit)
}

func TestClaimHandlerReviewNormalizesDecision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &claimServiceMock{
		reviewResp: &models.AchievementClaim{ID: "claim-1", Status: models.ClaimStatusVerified},
	}
	h := NewClaimHandler(mockSvc)

	payload, _ := json.Marshal(map[string]string{"decision": "verify"})
	c, w := newGinContext(http.MethodPost, "/claims/claim-1/review", payload)
	c.Params = gin.Params{{Key: "id", Value: "claim-1"}}
	setActor(c, models.RoleFaculty)

	h.Review(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.DecisionVerify, mockSvc.lastReview.Decision)
}

func TestClaimHandlerReviewConflictCarriesCurrentClaim(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reviewer := "faculty-1"
	mockSvc := &claimServiceMock{
		reviewResp: &models.AchievementClaim{ID: "claim-1", Status: models.ClaimStatusVerified, ReviewedBy: &reviewer},
		reviewErr:  appErrors.Clone(appErrors.ErrConflict, "claim already decided"),
	}
	h := NewClaimHandler(mockSvc)

	payload, _ := json.Marshal(map[string]string{"decision": "reject"})
	c, w := newGinContext(http.MethodPost, "/claims/claim-1/review", payload)
	c.Params = gin.Params{{Key: "id", Value: "claim-1"}}
	setActor(c, models.RoleFaculty)

	h.Review(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope struct {
		Data  *models.AchievementClaim `json:"data"`
		Error *appErrors.Error         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	require.Equal(t, "CONFLICT", envelope.Error.Code)
	require.NotNil(t, envelope.Data)
	require.Equal(t, models.ClaimStatusVerified, envelope.Data.Status)
	require.Equal(t, "faculty-1", *envelope.Data.ReviewedBy)
}

func TestClaimHandlerReviewForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &claimServiceMock{
		reviewErr: appErrors.Clone(appErrors.ErrForbidden, "claim belongs to another institution"),
	}
	h := NewClaimHandler(mockSvc)

	payload, _ := json.Marshal(map[string]string{"decision": "verify"})
	c, w := newGinContext(http.MethodPost, "/claims/claim-1/review", payload)
	c.Params = gin.Params{{Key: "id", Value: "claim-1"}}
	setActor(c, models.RoleFaculty)

	h.Review(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
