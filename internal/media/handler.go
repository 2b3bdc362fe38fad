package media

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"coraza-store/internal/auth"
	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

const (
	maxUploadSizeBytes = 10 << 20
)

type Image struct {
	Data        []byte
	ContentType string
	Extension   string
}

type ImageUploader interface {
	UploadImage(ctx context.Context, image Image) (string, error)
}

type Auditor interface {
	Record(ctx context.Context, actor *uuid.UUID, action string, fields map[string]any)
}

type UploadHandler struct {
	uploader ImageUploader
	auditor  Auditor
	logger   *observability.Logger
}

func NewUploadHandler(uploader ImageUploader, auditor Auditor, logger *observability.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, auditor: auditor, logger: logger}
}

// Upload accepts a multipart "file" (or "image") field and answers with the
// public URL of the stored image.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSizeBytes+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSizeBytes); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_multipart_form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
	}
	if err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "failed_to_read_file")
		return
	}
	if len(data) == 0 {
		httpx.WriteMessage(w, http.StatusBadRequest, "file_empty")
		return
	}
	if len(data) > maxUploadSizeBytes {
		httpx.WriteMessage(w, http.StatusBadRequest, "file_too_large")
		return
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		httpx.WriteMessage(w, http.StatusBadRequest, "file_must_be_image")
		return
	}

	url, err := h.uploader.UploadImage(r.Context(), Image{
		Data:        data,
		ContentType: contentType,
		Extension:   imageExtension(header.Filename, contentType),
	})
	if err != nil {
		observability.CaptureError(h.logger, "image_upload_failed", err, map[string]any{"filename": header.Filename})
		httpx.WriteMessage(w, http.StatusBadGateway, "failed_to_upload_image")
		return
	}

	h.auditor.Record(r.Context(), auth.ActorID(r.Context()), "upload_image", map[string]any{"url": url})

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

var allowedExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// imageExtension trusts the sniffed content type over the client's filename.
func imageExtension(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if allowedExtensions[ext] {
		if byType, _ := mime.ExtensionsByType(contentType); len(byType) == 0 || slices.Contains(byType, ext) {
			return ext
		}
	}

	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".img"
}

