package api

import (
	"fmt"
	"net/http"

	"github.com/nugget/shopkeep/internal/imagesearch"
)

// ImageSearchResponse lists catalog items similar to an upload.
type ImageSearchResponse struct {
	Products []imagesearch.Product `json:"products"`
}

// handleImageSearch forwards an uploaded picture to the image search
// service. The file travels in the "image" field of a multipart form.
// POST /v1/images/search
func (s *Server) handleImageSearch(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "image search not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	if !imagesearch.Supported(header.Filename) {
		s.fail(w, r, fmt.Errorf("%w: %s", imagesearch.ErrUnsupportedFormat, header.Filename))
		return
	}

	products, err := s.images.Search(r.Context(), header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if products == nil {
		products = []imagesearch.Product{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ImageSearchResponse{Products: products}, s.logger)
}

// UploadResponse names a stored picture. Send ImageID with the next
// chat message so the assistant can search by it.
type UploadResponse struct {
	ThreadID string `json:"thread_id"`
	ImageID  string `json:"image_id"`
}

// handleUpload stores a picture for a thread. The file travels in the
// "image" field of a multipart form.
// POST /v1/threads/{id}/images
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "image uploads not configured")
		return
	}
	threadID := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	id, err := s.uploads.Save(threadID, header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, UploadResponse{ThreadID: threadID, ImageID: id}, s.logger)
}
