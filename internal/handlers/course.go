package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sugang-app/apiserver/internal/services"
	"github.com/sugang-app/apiserver/internal/store"
	"github.com/sugang-app/apiserver/types"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// CourseHandler provides HTTP handlers for the course catalog.
type CourseHandler struct {
	courseService *services.CourseService
}

// NewCourseHandler constructs a handler with the provided service.
func NewCourseHandler(courseService *services.CourseService) *CourseHandler {
	return &CourseHandler{courseService: courseService}
}

// CourseRouter registers catalog routes on the given router.
func CourseRouter(
	r chi.Router,
	courseService *services.CourseService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewCourseHandler(courseService)

	r.Get("/", handler.ListCourses)
	if authMiddleware != nil {
		r.With(authMiddleware).Post("/", handler.CreateCourse)
		r.With(authMiddleware).Delete("/{courseID}", handler.DeleteCourse)
	} else {
		r.Post("/", handler.CreateCourse)
		r.Delete("/{courseID}", handler.DeleteCourse)
	}
	r.Get("/{courseID}", handler.GetCourse)
}

// CourseListResponse is the paginated catalog page.
type CourseListResponse struct {
	Items []types.Course `json:"courses"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int            `json:"totalCourses"`
}

func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	items, total, err := h.courseService.List(r.Context(), search, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list courses")
		return
	}

	writeJSON(w, http.StatusOK, CourseListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "courseID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "course id is required")
		return
	}

	course, err := h.courseService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch course")
		return
	}

	writeJSON(w, http.StatusOK, course)
}

// CreateCourseRequest is the payload for adding a catalog entry.
type CreateCourseRequest struct {
	Name       string `json:"name"`
	Professor  string `json:"professor"`
	Department string `json:"department"`
	Credits    int    `json:"credits"`
	Schedule   string `json:"schedule"`
	Capacity   int    `json:"capacity"`
}

func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.courseService.Create(r.Context(), types.Course{
		Name:       req.Name,
		Professor:  req.Professor,
		Department: req.Department,
		Credits:    req.Credits,
		Schedule:   req.Schedule,
		Capacity:   req.Capacity,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to create course: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// DeleteCourse removes a catalog entry. Courses with registered students
// cannot be deleted.
func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "courseID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "course id is required")
		return
	}

	if err := h.courseService.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "course not found")
		case errors.Is(err, store.ErrCourseInUse):
			writeError(w, http.StatusConflict, "course has registered students")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete course")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
