// Package users declares the credential store contract and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills ID and server defaults. A taken email
	// yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// LockByID takes a row lock on the user until the surrounding transaction ends.
	LockByID(ctx context.Context, id int64) error
}
