package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skillproof/skillproof-backend/internal/middleware"
	"github.com/skillproof/skillproof-backend/internal/model"
	"github.com/skillproof/skillproof-backend/internal/response"
	"github.com/skillproof/skillproof-backend/internal/service"
	"github.com/skillproof/skillproof-backend/internal/validator"
)

// TestHandler handles the admin test authoring and review endpoints.
type TestHandler struct {
	testService *service.TestService
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService) *TestHandler {
	return &TestHandler{testService: testService}
}

// Create godoc
// POST /api/v1/admin/tests
func (h *TestHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	t, err := h.testService.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"test": t})
}

// List godoc
// GET /api/v1/admin/tests?page=1&per_page=20
func (h *TestHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	tests, total, err := h.testService.List(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		failFromService(c, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"tests": tests}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	})
}

// Get godoc
// GET /api/v1/admin/tests/:id
func (h *TestHandler) Get(c *gin.Context) {
	claims, testID, ok := adminAndTestID(c)
	if !ok {
		return
	}

	t, err := h.testService.Get(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": t})
}

// Update godoc
// PATCH /api/v1/admin/tests/:id
func (h *TestHandler) Update(c *gin.Context) {
	claims, testID, ok := adminAndTestID(c)
	if !ok {
		return
	}

	var req model.UpdateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	t, err := h.testService.Update(c.Request.Context(), claims.UserID, testID, req)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": t})
}

// Activate godoc
// POST /api/v1/admin/tests/:id/activate
// Opens the test and materializes one session per invited email.
func (h *TestHandler) Activate(c *gin.Context) {
	claims, testID, ok := adminAndTestID(c)
	if !ok {
		return
	}

	t, err := h.testService.Activate(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": t})
}

// Deactivate godoc
// POST /api/v1/admin/tests/:id/deactivate
func (h *TestHandler) Deactivate(c *gin.Context) {
	claims, testID, ok := adminAndTestID(c)
	if !ok {
		return
	}

	t, err := h.testService.Deactivate(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": t})
}

// ListSessions godoc
// GET /api/v1/admin/tests/:id/sessions
// Returns sessions with access tokens so the admin can distribute links.
func (h *TestHandler) ListSessions(c *gin.Context) {
	claims, testID, ok := adminAndTestID(c)
	if !ok {
		return
	}

	sessions, err := h.testService.ListSessions(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// Review godoc
// GET /api/v1/admin/sessions/:id/responses
// Returns one candidate's submission joined with the authored questions.
func (h *TestHandler) Review(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	review, err := h.testService.Review(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"review": review})
}

// adminAndTestID pulls claims and the :id path param, failing the request on
// either being absent.
func adminAndTestID(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, id, true
}
