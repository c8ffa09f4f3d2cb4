package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"manuscript-converter/models"
)

var ErrRecordNotFound = errors.New("record not found")

// RecordStore owns the durable html, images and pdf_url fields of deposits
// and reviews.
type RecordStore interface {
	UpdateHTML(ctx context.Context, kind models.ResourceKind, id string, result models.HTMLResult) error
	UpdatePDF(ctx context.Context, kind models.ResourceKind, id string, result models.PDFResult) error
}

var recordTables = map[models.ResourceKind]string{
	models.KindDeposit: "deposits",
	models.KindReview:  "reviews",
}

type DatabaseService struct {
	db  *sql.DB
	now func() time.Time
}

func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewDatabaseServiceWithDB(db), nil
}

func NewDatabaseServiceWithDB(db *sql.DB) *DatabaseService {
	return &DatabaseService{db: db, now: time.Now}
}

func (d *DatabaseService) UpdateHTML(ctx context.Context, kind models.ResourceKind, id string, result models.HTMLResult) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	images := result.Images
	if images == nil {
		images = []string{}
	}

	query := `UPDATE ` + table + ` SET html = $1, images = $2, updated_at = $3 WHERE id = $4`
	res, err := d.db.ExecContext(ctx, query, result.HTML, pq.Array(images), d.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update %s html: %w", kind, err)
	}
	return requireAffected(res, kind, id)
}

func (d *DatabaseService) UpdatePDF(ctx context.Context, kind models.ResourceKind, id string, result models.PDFResult) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	query := `UPDATE ` + table + ` SET pdf_url = $1, updated_at = $2 WHERE id = $3`
	res, err := d.db.ExecContext(ctx, query, result.PDFFilename, d.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update %s pdf: %w", kind, err)
	}
	return requireAffected(res, kind, id)
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}

func tableFor(kind models.ResourceKind) (string, error) {
	table, ok := recordTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
	return table, nil
}

func requireAffected(res sql.Result, kind models.ResourceKind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, kind, id)
	}
	return nil
}
