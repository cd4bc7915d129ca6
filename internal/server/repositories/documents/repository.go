// Package documents stores metadata of uploaded documents.
package documents

import (
	"context"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, doc *models.Document) (*models.Document, error)
	// Get returns the document only when it belongs to userID.
	Get(ctx context.Context, id, userID int64) (*models.Document, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Document, error)
	// Update writes the mutable fields: collection name and status.
	Update(ctx context.Context, doc *models.Document) error
}
