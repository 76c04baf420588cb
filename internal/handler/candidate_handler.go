package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skillproof/skillproof-backend/internal/model"
	"github.com/skillproof/skillproof-backend/internal/response"
	"github.com/skillproof/skillproof-backend/internal/service"
	"github.com/skillproof/skillproof-backend/internal/validator"
)

// CandidateHandler handles the candidate-facing session endpoints. There is
// no candidate account: the access token in the URL plus the invited email
// is the whole credential.
type CandidateHandler struct {
	sessionService  *service.SessionService
	materialService *service.MaterialService
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(sessionService *service.SessionService, materialService *service.MaterialService) *CandidateHandler {
	return &CandidateHandler{
		sessionService:  sessionService,
		materialService: materialService,
	}
}

// Resolve godoc
// POST /api/v1/candidate/sessions/:token/resolve
// Confirms the email against the invite and returns the pre-start view.
func (h *CandidateHandler) Resolve(c *gin.Context) {
	var req model.ResolveSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), c.Param("token"), req.Email)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// Start godoc
// POST /api/v1/candidate/sessions/:token/start
// Starts the clock (idempotent) and returns material, questions and the
// remaining time.
func (h *CandidateHandler) Start(c *gin.Context) {
	var req model.ResolveSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.sessionService.Start(c.Request.Context(), c.Param("token"), req.Email)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// State godoc
// GET /api/v1/candidate/sessions/:token/state?email=...
// Returns the current view; a reload path that never mutates.
func (h *CandidateHandler) State(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), c.Param("token"), email)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// Autosave godoc
// PUT /api/v1/candidate/sessions/:token/answers
// Saves one answer mid-attempt.
func (h *CandidateHandler) Autosave(c *gin.Context) {
	var req model.AutosaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.Autosave(c.Request.Context(), c.Param("token"), req.Email, req); err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// Upload godoc
// POST /api/v1/candidate/sessions/:token/upload
// Accepts a multipart work file for tests that allow uploads.
func (h *CandidateHandler) Upload(c *gin.Context) {
	email := c.PostForm("email")
	if email == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
		return
	}

	sess, t, err := h.sessionService.Resolve(c.Request.Context(), c.Param("token"), email)
	if err != nil {
		failFromService(c, err)
		return
	}
	if sess.SubmittedAt != nil {
		response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	storePath, err := h.materialService.SaveCandidateUpload(t, sess, file, header)
	if err != nil {
		failFromService(c, err)
		return
	}
	if err := h.sessionService.AttachUpload(c.Request.Context(), c.Param("token"), email, storePath); err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"upload_path": storePath})
}

// Submit godoc
// POST /api/v1/candidate/sessions/:token/submit
// Records the final answers. Repeat submissions return the recorded session
// unchanged.
func (h *CandidateHandler) Submit(c *gin.Context) {
	var req model.SubmitSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessionService.Submit(c.Request.Context(), c.Param("token"), req)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": sess.ForCandidate()})
}
