package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/dbx"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/logging"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Bus subjects shared with the external ingestion and chat workers.
const (
	SubjectDocumentUploaded = "docchat.documents.uploaded"
	SubjectChatAsk          = "docchat.chat.ask"
)

// ObjectStore keeps uploaded document bodies.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// EventPublisher delivers ingestion events to the embedding worker.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// ChatRequester performs a request/reply round trip with the chat worker.
type ChatRequester interface {
	Request(ctx context.Context, subject string, req, resp any) error
}

// DocumentSettings are the limits and worker parameters of the pipeline.
type DocumentSettings struct {
	MaxUploadSize     int64
	AllowedExtensions []string
	EmbeddingModel    string
	ChunkSize         int
	ChunkOverlap      int
	LLMModel          string
	ChatTimeout       time.Duration
}

// DocumentUploadedEvent is published once a document is stored.
type DocumentUploadedEvent struct {
	DocumentID     int64     `json:"document_id"`
	UserID         int64     `json:"user_id"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	FileType       string    `json:"file_type"`
	StorageKey     string    `json:"storage_key"`
	CollectionName string    `json:"collection_name"`
	EmbeddingModel string    `json:"embedding_model"`
	ChunkSize      int       `json:"chunk_size"`
	ChunkOverlap   int       `json:"chunk_overlap"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// ChatRequest is sent to the chat worker.
type ChatRequest struct {
	UserID      int64    `json:"user_id"`
	Question    string   `json:"question"`
	Collections []string `json:"collections"`
	Model       string   `json:"model"`
}

// ChatAnswer is the chat worker's reply. A non-empty Error means the worker
// could not answer.
type ChatAnswer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Error   string   `json:"error,omitempty"`
}

// UploadInput describes a file received from a client.
type UploadInput struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// DocumentView is a document with a temporary download link.
type DocumentView struct {
	*models.Document
	DownloadURL string
}

// DocumentService stores uploaded documents and forwards ingestion and
// chat work to external workers over the bus. Publisher and requester may be
// nil when no bus is configured.
type DocumentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       ObjectStore
	publisher   EventPublisher
	chat        ChatRequester
	settings    DocumentSettings
	log         logging.Logger
}

func NewDocumentService(db *sql.DB, m repomanager.RepositoryManager, store ObjectStore, publisher EventPublisher,
	chat ChatRequester, settings DocumentSettings, log logging.Logger) *DocumentService {
	return &DocumentService{
		db:          db,
		repomanager: m,
		store:       store,
		publisher:   publisher,
		chat:        chat,
		settings:    settings,
		log:         log.With("module", "documents"),
	}
}

// CollectionName names the vector collection of a document in the embedding worker.
func CollectionName(userID, documentID int64, suffix string) string {
	return fmt.Sprintf("user_%d_doc_%d_%s", userID, documentID, suffix)
}

func (s *DocumentService) validateUpload(in UploadInput) (string, error) {
	ext := strings.ToLower(filepath.Ext(in.FileName))
	if ext == "" || !slices.Contains(s.settings.AllowedExtensions, ext) {
		return "", fmt.Errorf("%w: %q", common.ErrUnsupportedFileType, ext)
	}
	if in.Size <= 0 {
		return "", fmt.Errorf("%w: empty file", common.ErrValidation)
	}
	if in.Size > s.settings.MaxUploadSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", common.ErrFileTooLarge, in.Size, s.settings.MaxUploadSize)
	}
	return ext, nil
}

func storageKey(userID int64, fileName string) string {
	return fmt.Sprintf("users/%d/%s/%s", userID, uuid.NewString(), path.Base(filepath.ToSlash(fileName)))
}

// Upload stores the file, records it and queues it for ingestion. The
// document is returned even if the event could not be published; it then
// stays pending.
func (s *DocumentService) Upload(ctx context.Context, user *models.User, in UploadInput) (*models.Document, error) {
	ext, err := s.validateUpload(in)
	if err != nil {
		return nil, err
	}

	suffix, err := common.MakeRandHexString(4)
	if err != nil {
		return nil, err
	}

	key := storageKey(user.ID, in.FileName)
	if err := s.store.Put(ctx, key, in.ContentType, io.LimitReader(in.Body, in.Size), in.Size); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}

	doc := &models.Document{
		UserID:      user.ID,
		FileName:    path.Base(filepath.ToSlash(in.FileName)),
		ContentType: in.ContentType,
		SizeBytes:   in.Size,
		StorageKey:  key,
		Status:      models.DocumentPending,
	}

	err = dbx.WithTx(ctx, s.db, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Documents(tx)
		if _, err := repo.Create(ctx, doc); err != nil {
			return storeFailure(err)
		}
		doc.CollectionName = CollectionName(user.ID, doc.ID, suffix)
		return storeFailure(repo.Update(ctx, doc))
	})
	if err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.log.Warn(ctx, "orphaned object not deleted", "key", key, "error", derr)
		}
		return nil, err
	}

	s.queue(ctx, doc, strings.TrimPrefix(ext, "."))
	return doc, nil
}

func (s *DocumentService) queue(ctx context.Context, doc *models.Document, fileType string) {
	if s.publisher == nil {
		s.log.Warn(ctx, "no bus configured, document left pending", "document_id", doc.ID)
		return
	}

	ev := DocumentUploadedEvent{
		DocumentID:     doc.ID,
		UserID:         doc.UserID,
		FileName:       doc.FileName,
		ContentType:    doc.ContentType,
		FileType:       fileType,
		StorageKey:     doc.StorageKey,
		CollectionName: doc.CollectionName,
		EmbeddingModel: s.settings.EmbeddingModel,
		ChunkSize:      s.settings.ChunkSize,
		ChunkOverlap:   s.settings.ChunkOverlap,
		UploadedAt:     doc.UploadedAt,
	}
	if err := s.publisher.Publish(ctx, SubjectDocumentUploaded, ev); err != nil {
		s.log.Warn(ctx, "ingestion event not published", "document_id", doc.ID, "error", err)
		return
	}

	doc.Status = models.DocumentQueued
	if err := s.repomanager.Documents(s.db).Update(ctx, doc); err != nil {
		s.log.Warn(ctx, "document status not updated", "document_id", doc.ID, "error", err)
	}
}

// List returns the user's documents, newest first, with download links.
// A link that cannot be signed is left empty.
func (s *DocumentService) List(ctx context.Context, user *models.User) ([]DocumentView, error) {
	docs, err := s.repomanager.Documents(s.db).ListByUser(ctx, user.ID)
	if err != nil {
		return nil, storeFailure(err)
	}

	views := make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		url, err := s.store.PresignGet(ctx, d.StorageKey)
		if err != nil {
			s.log.Warn(ctx, "download link not signed", "document_id", d.ID, "error", err)
		}
		views = append(views, DocumentView{Document: d, DownloadURL: url})
	}
	return views, nil
}

// Chat asks a question about one document, or about all of the user's
// documents when documentID is nil.
func (s *DocumentService) Chat(ctx context.Context, user *models.User, question string, documentID *int64) (*ChatAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", common.ErrValidation)
	}

	collections, err := s.collections(ctx, user.ID, documentID)
	if err != nil {
		return nil, err
	}

	if s.chat == nil {
		return nil, common.ErrChatUnavailable
	}

	if s.settings.ChatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.ChatTimeout)
		defer cancel()
	}

	req := ChatRequest{UserID: user.ID, Question: question, Collections: collections, Model: s.settings.LLMModel}
	answer := &ChatAnswer{}
	if err := s.chat.Request(ctx, SubjectChatAsk, req, answer); err != nil {
		s.log.Warn(ctx, "chat request failed", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrChatUnavailable, err)
	}
	if answer.Error != "" {
		s.log.Warn(ctx, "chat worker returned an error", "user_id", user.ID, "error", answer.Error)
		return nil, fmt.Errorf("%w: %s", common.ErrChatUnavailable, answer.Error)
	}
	if answer.Sources == nil {
		answer.Sources = []string{}
	}
	return answer, nil
}

func (s *DocumentService) collections(ctx context.Context, userID int64, documentID *int64) ([]string, error) {
	repo := s.repomanager.Documents(s.db)

	if documentID != nil {
		d, err := repo.Get(ctx, *documentID, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, fmt.Errorf("%w: document %d", common.ErrorNotFound, *documentID)
			}
			return nil, storeFailure(err)
		}
		return []string{d.CollectionName}, nil
	}

	docs, err := repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents uploaded", common.ErrorNotFound)
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.CollectionName)
	}
	return out, nil
}
