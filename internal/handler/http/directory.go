package http

import (
	"net/http"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type DirectoryHandler interface {
	ListOffices(w http.ResponseWriter, r *http.Request)
	ListEmployees(w http.ResponseWriter, r *http.Request)
}

type directoryHandlerImpl struct {
	directory attendance.Directory
}

func NewDirectoryHandler(directory attendance.Directory) DirectoryHandler {
	return &directoryHandlerImpl{
		directory: directory,
	}
}

// ListOffices implements DirectoryHandler.
func (h *directoryHandlerImpl) ListOffices(w http.ResponseWriter, r *http.Request) {
	offices, err := h.directory.ListOffices(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, attendance.MapOfficesToResponse(offices))
}

// ListEmployees implements DirectoryHandler.
func (h *directoryHandlerImpl) ListEmployees(w http.ResponseWriter, r *http.Request) {
	officeID := chi.URLParam(r, "officeID")
	if officeID == "" {
		response.BadRequest(w, "officeID is required", nil)
		return
	}

	employees, err := h.directory.ListEmployees(r.Context(), officeID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, attendance.MapEmployeesToResponse(employees))
}
