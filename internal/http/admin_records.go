package httpapi

import (
	"net/http"
	"strings"

	"tradehub-admin/internal/cache"
	"tradehub-admin/internal/form"
	"tradehub-admin/internal/listing"
	"tradehub-admin/internal/logging"
	"tradehub-admin/internal/models"
	"tradehub-admin/internal/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ViewResponse struct {
	services.Page
	Accepted bool `json:"accepted"`
}

// resolveTable writes a 404 for unknown table names.
func (s *Server) resolveTable(w http.ResponseWriter, r *http.Request) (services.Admin, bool) {
	name := chi.URLParam(r, "table")
	admin, ok := s.Catalog[name]
	if !ok {
		WriteError(w, http.StatusNotFound, "Unknown table")
		return nil, false
	}
	return admin, true
}

func (s *Server) requireWrite(w http.ResponseWriter, r *http.Request, table string) bool {
	if canWrite(CurrentRole(r), table) {
		return true
	}
	WriteError(w, http.StatusForbidden, "Not allowed")
	return false
}

// listState builds one-off list controls from query parameters.
func (s *Server) listState(r *http.Request) listing.State {
	q := r.URL.Query()
	st := listing.NewState(parseInt(q.Get("pageSize"), s.Config.DefaultPageSize))
	st.Search = services.CleanSearchTerm(q.Get("search"))
	st.Filter = strings.TrimSpace(q.Get("filter"))
	st.Tab = strings.TrimSpace(q.Get("tab"))
	st.SortColumn = strings.TrimSpace(q.Get("sort"))
	st.SortDir = listing.ParseDirection(q.Get("dir"))
	st.Page = parseInt(q.Get("page"), 1)
	return st
}

func (s *Server) ListRecords(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.resolveTable(w, r)
	if !ok {
		return
	}
	page, err := admin.Page(r.Context(), s.listState(r))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func (s *Server) GetRecord(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.resolveTable(w, r)
	if !ok {
		return
	}
	item, err := admin.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

func (s *Server) CreateRecord(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.resolveTable(w, r)
	if !ok || !s.requireWrite(w, r, admin.Name()) {
		return
	}
	body := form.Values{}
	if err := decodeJSON(w, r, &body); err != nil {
		mapServiceError(w, err)
		return
	}
	item, err := admin.Create(r.Context(), CurrentUserID(r), body)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, item)
}

func (s *Server) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.resolveTable(w, r)
	if !ok || !s.requireWrite(w, r, admin.Name()) {
		return
	}
	id := chi.URLParam(r, "id")
	body := form.Values{}
	if err := decodeJSON(w, r, &body); err != nil {
		mapServiceError(w, err)
		return
	}
	if admin.Name() == "users" && id == CurrentUserID(r) {
		if status, _ := body["status"].(string); status != "" && status != "active" {
			WriteError(w, http.StatusBadRequest, "You cannot suspend your own account")
			return
		}
	}
	item, err := admin.Update(r.Context(), CurrentUserID(r), id, body)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if user, ok := item.(models.User); ok {
		s.syncUserSessions(r, user)
	}
	WriteJSON(w, http.StatusOK, item)
}

// syncUserSessions ends the sessions that no longer match the stored
// account: all of them when it is not active, otherwise those opened under
// another role. Sessions cache the role, so this is what makes a demotion
// effective.
func (s *Server) syncUserSessions(r *http.Request, user models.User) {
	var n int
	reason := "role changed"
	if user.Status != "active" {
		n = s.Sessions.EndUser(user.ID)
		reason = "account " + user.Status
	} else {
		n = s.Sessions.EndStale(user.ID, user.Role)
	}
	if n > 0 {
		logging.FromContext(r.Context()).Info("user sessions ended",
			zap.String("target", user.ID), zap.String("reason", reason), zap.Int("sessions_ended", n))
	}
}

func (s *Server) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.resolveTable(w, r)
	if !ok || !s.requireWrite(w, r, admin.Name()) {
		return
	}
	id := chi.URLParam(r, "id")
	if admin.Name() == "users" && id == CurrentUserID(r) {
		WriteError(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}
	if err := admin.Delete(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	if admin.Name() == "users" {
		s.Sessions.EndUser(id)
	}
	s.removeOwnedImages(r, admin.Name(), id)
	w.WriteHeader(http.StatusNoContent)
}

// removeOwnedImages drops the images of a deleted row. Failures are logged;
// the owner is already gone.
func (s *Server) removeOwnedImages(r *http.Request, table, id string) {
	images, err := s.Images.ForRecord(r.Context(), table, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("list owned images", zap.String("table", table), zap.Error(err))
		return
	}
	for _, img := range images {
		if _, err := s.Images.Delete(r.Context(), img.ID); err != nil {
			logging.FromContext(r.Context()).Warn("delete owned image", zap.String("image", img.ID), zap.Error(err))
		}
	}
	if len(images) > 0 {
		s.Cache.Invalidate(cache.StatsKey)
	}
}

// GetView returns the page selected by the caller's stored list controls.
func (s *Server) GetView(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.resolveTable(w, r)
	if !ok {
		return
	}
	st := CurrentSession(r).View(admin.Name(), s.Config.DefaultPageSize)
	page, err := admin.Page(r.Context(), st)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ViewResponse{Page: page, Accepted: true})
}

// PatchView applies one control change to the caller's stored list view.
// A rejected page entry is not an error: Accepted is false and the page
// input reverts to the current page.
func (s *Server) PatchView(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.resolveTable(w, r)
	if !ok {
		return
	}
	var op services.ViewOp
	if err := decodeJSON(w, r, &op); err != nil {
		mapServiceError(w, err)
		return
	}
	var (
		page     services.Page
		accepted bool
		err      error
	)
	CurrentSession(r).UpdateView(admin.Name(), s.Config.DefaultPageSize, func(st *listing.State) {
		page, accepted, err = admin.Apply(r.Context(), *st, op)
		if err == nil {
			*st = page.State
		}
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ViewResponse{Page: page, Accepted: accepted})
}

func (s *Server) ResetView(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.resolveTable(w, r)
	if !ok {
		return
	}
	CurrentSession(r).ResetView(admin.Name())
	w.WriteHeader(http.StatusNoContent)
}
