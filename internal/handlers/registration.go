package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sugang-app/apiserver/internal/registration"
	"github.com/sugang-app/apiserver/internal/services"
	"github.com/sugang-app/apiserver/internal/store"
	"github.com/sugang-app/apiserver/types"
)

// RegistrationHandler provides the registration intent endpoints. Submitting
// only acknowledges that the intent is enqueued; the outcome is served by the
// status endpoint once the worker has applied it.
type RegistrationHandler struct {
	producer    *registration.Producer
	statuses    *store.StatusRepository
	userService *services.UserService
}

// NewRegistrationHandler constructs the handler with its dependencies.
func NewRegistrationHandler(
	producer *registration.Producer,
	statuses *store.StatusRepository,
	userService *services.UserService,
) *RegistrationHandler {
	return &RegistrationHandler{
		producer:    producer,
		statuses:    statuses,
		userService: userService,
	}
}

// RegistrationRouter registers the registration routes; all require auth.
func RegistrationRouter(
	r chi.Router,
	producer *registration.Producer,
	statuses *store.StatusRepository,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewRegistrationHandler(producer, statuses, userService)

	r.Use(authMiddleware)
	r.Post("/", handler.Submit)
	r.Get("/{requestID}", handler.Status)
}

// SubmitRequest asks for a registration state change.
type SubmitRequest struct {
	CourseID string `json:"courseId"`
	Action   string `json:"action"`
}

// SubmitResponse acknowledges an enqueued intent.
type SubmitResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// Submit enqueues a register/unregister intent for the authenticated student
// and answers 202: the request is durably queued but not yet applied.
func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.CourseID = strings.TrimSpace(req.CourseID)
	if req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "courseId is required")
		return
	}
	action := types.IntentAction(strings.TrimSpace(req.Action))
	if !action.Valid() {
		writeError(w, http.StatusBadRequest, "action must be register or unregister")
		return
	}

	requestID, err := h.producer.Submit(r.Context(), action, studentID, req.CourseID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "failed to submit request")
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		Message:   "request submitted",
		RequestID: requestID,
	})
}

// Status reports what became of a submitted intent. Unprocessed requests
// answer with a pending outcome rather than 404, since the producer may be
// ahead of the worker.
func (h *RegistrationHandler) Status(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "request id is required")
		return
	}

	status, err := h.statuses.Get(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, types.RegistrationStatus{
				RequestID: requestID,
				Outcome:   types.OutcomePending,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// MyCourses returns the authenticated student's registered courses in
// registration order. This is the read path that reveals the true outcome of
// earlier submissions.
func (h *RegistrationHandler) MyCourses(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if _, err := h.userService.GetByStudentID(r.Context(), studentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	courses, err := h.userService.ListRegisteredCourses(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list registered courses")
		return
	}

	writeJSON(w, http.StatusOK, courses)
}

// LegacySubmit serves the older POST /register-course and
// POST /unregister-course shapes, which carry the student in the body.
func (h *RegistrationHandler) LegacySubmit(action types.IntentAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StudentID string `json:"studentId"`
			CourseID  string `json:"courseId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}

		req.StudentID = strings.TrimSpace(req.StudentID)
		req.CourseID = strings.TrimSpace(req.CourseID)
		if req.StudentID == "" || req.CourseID == "" {
			writeError(w, http.StatusBadRequest, "studentId and courseId are required")
			return
		}

		requestID, err := h.producer.Submit(r.Context(), action, req.StudentID, req.CourseID)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "failed to submit request")
			return
		}

		writeJSON(w, http.StatusAccepted, SubmitResponse{
			Message:   "request submitted",
			RequestID: requestID,
		})
	}
}
