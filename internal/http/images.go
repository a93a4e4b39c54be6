package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tradehub-admin/internal/cache"
	"tradehub-admin/internal/logging"
	"tradehub-admin/internal/models"
	"tradehub-admin/internal/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ImageListResponse struct {
	Items []models.Image `json:"items"`
}

func (s *Server) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := s.Images.ForRecord(r.Context(), strings.TrimSpace(q.Get("table")), strings.TrimSpace(q.Get("record")))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ImageListResponse{Items: items})
}

// UploadImage stores a multipart "file" for the row named by the "table"
// and "record" fields.
func (s *Server) UploadImage(w http.ResponseWriter, r *http.Request) {
	limit := s.Images.Store.MaxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "File is too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "File is empty")
		return
	}
	table := strings.TrimSpace(r.FormValue("table"))
	if !s.requireWrite(w, r, table) {
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "File is empty")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	in := services.ImageUpload{
		TableName:   table,
		RecordID:    strings.TrimSpace(r.FormValue("record")),
		Type:        strings.TrimSpace(r.FormValue("type")),
		Alt:         strings.TrimSpace(r.FormValue("alt")),
		Filename:    header.Filename,
		ContentType: contentType,
		Body:        file,
	}
	if errs := s.Images.Validate(in); len(errs) > 0 {
		mapServiceError(w, &services.ValidationError{Table: "images", Fields: errs})
		return
	}
	img, err := s.Images.Upload(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	s.Cache.Invalidate(cache.StatsKey)
	logging.FromContext(r.Context()).Info("image uploaded",
		zap.String("image", img.ID), zap.String("owner", img.TableName+"/"+img.RecordID), zap.Int64("bytes", img.SizeBytes))
	WriteJSON(w, http.StatusCreated, img)
}

func (s *Server) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	current, err := s.Images.Table.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if !s.requireWrite(w, r, current.TableName) {
		return
	}
	if _, err := s.Images.Delete(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	s.Cache.Invalidate(cache.StatsKey)
	w.WriteHeader(http.StatusNoContent)
}

// MediaContent serves a stored blob. Paths are resolved inside the bucket;
// anything escaping it is a 400.
func (s *Server) MediaContent(w http.ResponseWriter, r *http.Request) {
	file, err := s.Images.Store.Open(chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		WriteError(w, http.StatusNotFound, "Media not found")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}
