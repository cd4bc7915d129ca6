package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/services"
)

// multipartOverhead is allowed on top of the file size for form framing.
const multipartOverhead = 1 << 20

type documentResponse struct {
	ID             int64     `json:"id"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	SizeBytes      int64     `json:"size_bytes"`
	Status         string    `json:"status"`
	CollectionName string    `json:"collection_name"`
	UploadedAt     time.Time `json:"uploaded_at"`
	DownloadURL    string    `json:"download_url,omitempty"`
}

func toDocumentResponse(d *models.Document, url string) documentResponse {
	return documentResponse{
		ID:             d.ID,
		FileName:       d.FileName,
		ContentType:    d.ContentType,
		SizeBytes:      d.SizeBytes,
		Status:         d.Status,
		CollectionName: d.CollectionName,
		UploadedAt:     d.UploadedAt,
		DownloadURL:    url,
	}
}

type chatRequest struct {
	Question   string `json:"question"`
	DocumentID *int64 `json:"document_id,omitempty"`
}

type chatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

func (a *API) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u, ok := services.UserFromContext(r.Context())
	if !ok {
		a.fail(w, r, &services.UnauthorizedError{Reason: "missing user"})
	}
	return u, ok
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			a.fail(w, r, fmt.Errorf("%w: limit is %d bytes", common.ErrFileTooLarge, a.maxUpload))
			return
		}
		a.fail(w, r, fmt.Errorf("%w: multipart field \"file\" is required", common.ErrValidation))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	doc, err := a.documents.Upload(r.Context(), user, services.UploadInput{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"document": toDocumentResponse(doc, "")})
}

func (a *API) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	views, err := a.documents.List(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]documentResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toDocumentResponse(v.Document, v.DownloadURL))
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	ans, err := a.documents.Chat(r.Context(), user, req.Question, req.DocumentID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Answer: ans.Answer, Sources: ans.Sources})
}
