package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/common"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/dbx"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, doc *models.Document) (*models.Document, error) {
	query :=
		`INSERT INTO documents (user_id, file_name, content_type, size_bytes, storage_key, collection_name, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, uploaded_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		doc.UserID, doc.FileName, doc.ContentType, doc.SizeBytes, doc.StorageKey, doc.CollectionName, doc.Status,
	).Scan(&doc.ID, &doc.UploadedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

const selectDocument = `SELECT id, user_id, file_name, content_type, size_bytes, storage_key, collection_name, status, uploaded_at FROM documents`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*models.Document, error) {
	d := &models.Document{}
	err := s.Scan(&d.ID, &d.UserID, &d.FileName, &d.ContentType, &d.SizeBytes, &d.StorageKey, &d.CollectionName, &d.Status, &d.UploadedAt)
	return d, err
}

func (r *PostgresRepository) Get(ctx context.Context, id, userID int64) (*models.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx, selectDocument+` WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Document, error) {
	rows, err := r.db.QueryContext(ctx, selectDocument+` WHERE user_id = $1 ORDER BY uploaded_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return docs, nil
}

func (r *PostgresRepository) Update(ctx context.Context, doc *models.Document) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET collection_name = $1, status = $2 WHERE id = $3`,
		doc.CollectionName, doc.Status, doc.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
