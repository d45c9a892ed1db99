package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/haivivi/ishe/pkg/auth"
	"github.com/haivivi/ishe/pkg/storage"
)

// uploadOverhead leaves room for the multipart framing and form fields.
const uploadOverhead = 1 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxRecordingSize+uploadOverhead)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer f.Close()

	rec, err := storage.SaveRecording(r.Context(), s.opts.Recordings, id.UserID, hdr.Filename, f, s.now())
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large")
		return
	case errors.Is(err, storage.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported audio type")
		return
	case err != nil:
		s.logger.Error("save recording", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload audio")
		return
	}
	if ms, err := strconv.ParseInt(r.FormValue("duration"), 10, 64); err == nil && ms > 0 {
		rec.Duration = ms
	}
	s.logger.Info("recording stored", "user_id", id.UserID, "path", rec.Path, "size", rec.Size, "duration_ms", rec.Duration)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Audio uploaded successfully",
		"filename":  rec.Path,
		"path":      rec.Path,
		"recording": rec,
	})
}
