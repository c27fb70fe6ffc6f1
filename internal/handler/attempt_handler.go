package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepnest/attempt-backend/internal/engine"
	"github.com/prepnest/attempt-backend/internal/examapi"
	"github.com/prepnest/attempt-backend/internal/middleware"
	"github.com/prepnest/attempt-backend/internal/model"
	"github.com/prepnest/attempt-backend/internal/response"
	"github.com/prepnest/attempt-backend/internal/service"
	"github.com/prepnest/attempt-backend/internal/validator"
)

// AttemptHandler handles the candidate-facing attempt endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// StartAttempt godoc
// POST /api/v1/exams/:exam_id/attempt
// Starts a new attempt or rehydrates the candidate's live one. Fatal load
// failures (exam missing, access denied, exam service down) are terminal:
// the client shows the failure screen with a path back to the dashboard.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID := c.Param("exam_id")
	if examID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.attemptService.Start(c.Request.Context(), examID, claims.CandidateID)
	if err != nil {
		var loadErr *examapi.LoadError
		if errors.As(err, &loadErr) {
			switch loadErr.Kind {
			case examapi.LoadNotFound:
				response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
			case examapi.LoadForbidden:
				response.Fail(c, http.StatusForbidden, response.ErrExamAccessDenied)
			default:
				response.Fail(c, http.StatusBadGateway, response.ErrExamServiceDown)
			}
			return
		}
		if errors.Is(err, service.ErrNotAttemptOwner) {
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetState godoc
// GET /api/v1/attempts/:attempt_id/state
// Returns the reload snapshot: status, remaining time, answers, review
// flags, and time spent. This is what makes a mid-exam reload resume
// exactly where it left off.
func (h *AttemptHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), c.Param("attempt_id"), claims.CandidateID)
	if err != nil {
		h.failAccess(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// AcknowledgeRules godoc
// POST /api/v1/attempts/:attempt_id/rules-ack
// Explicit acceptance of the exam rules; the countdown starts here.
func (h *AttemptHandler) AcknowledgeRules(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	state, err := h.attemptService.AcknowledgeRules(c.Request.Context(), c.Param("attempt_id"), claims.CandidateID)
	if err != nil {
		h.failCommand(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SaveAnswer godoc
// POST /api/v1/attempts/:attempt_id/answer
// REST fallback for saving one answer when the event stream is unavailable.
// Same write-through semantics as the stream action: the store is current
// before the 200 goes out.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	eng, err := h.attemptService.Get(c.Param("attempt_id"), claims.CandidateID)
	if err != nil {
		h.failAccess(c, err)
		return
	}
	if err := eng.SelectAnswer(c.Request.Context(), req.QuestionID, req.Value); err != nil {
		h.failMutation(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// SetReview godoc
// POST /api/v1/attempts/:attempt_id/review
// REST fallback for toggling the review flag on a question.
func (h *AttemptHandler) SetReview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	eng, err := h.attemptService.Get(c.Param("attempt_id"), claims.CandidateID)
	if err != nil {
		h.failAccess(c, err)
		return
	}
	if err := eng.SetReview(c.Request.Context(), req.QuestionID, req.Marked); err != nil {
		h.failMutation(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Manual submission. The client confirms before calling; expiry-driven
// auto-submission happens inside the engine without this endpoint. A
// retryable failure returns 502 with the attempt back in progress and every
// answer intact.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	state, err := h.attemptService.Submit(c.Request.Context(), c.Param("attempt_id"), claims.CandidateID)
	if err != nil {
		var submitErr *examapi.SubmitError
		if errors.As(err, &submitErr) {
			response.Fail(c, http.StatusBadGateway, response.ErrSubmitFailed)
			return
		}
		h.failCommand(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// History godoc
// GET /api/v1/attempts
// Lists the candidate's archived attempts for the dashboard.
func (h *AttemptHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	records, err := h.attemptService.History(c.Request.Context(), claims.CandidateID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": records})
}

// GetRecord godoc
// GET /api/v1/attempts/:attempt_id/record
// Returns the archived audit row for an attempt the live registry has
// already forgotten (submitted, then purged).
func (h *AttemptHandler) GetRecord(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	rec, err := h.attemptService.Record(c.Request.Context(), c.Param("attempt_id"), claims.CandidateID)
	if err != nil {
		h.failAccess(c, err)
		return
	}

	response.Success(c, http.StatusOK, rec)
}

// failAccess maps registry lookup errors.
func (h *AttemptHandler) failAccess(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrNotAttemptOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// failMutation maps per-question mutation errors.
func (h *AttemptHandler) failMutation(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNotEditable):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotEditable)
	case errors.Is(err, engine.ErrUnknownQuestion):
		response.Fail(c, http.StatusNotFound, response.ErrUnknownQuestion)
	case errors.Is(err, engine.ErrInvalidOption), errors.Is(err, engine.ErrInvalidInteger):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidAnswer)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// failCommand maps engine command errors on top of access errors.
func (h *AttemptHandler) failCommand(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound),
		errors.Is(err, service.ErrNotAttemptOwner):
		h.failAccess(c, err)
	case errors.Is(err, engine.ErrWrongState), errors.Is(err, engine.ErrNotEditable):
		response.Fail(c, http.StatusConflict, response.ErrWrongAttemptState)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
