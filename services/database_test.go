package services_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-converter/models"
	"manuscript-converter/services"
)

func newMockDB(t *testing.T) (*services.DatabaseService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return services.NewDatabaseServiceWithDB(db), mock
}

func TestDatabaseService_UpdateHTML(t *testing.T) {
	svc, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE deposits SET html = $1, images = $2, updated_at = $3 WHERE id = $4`)).
		WithArgs("<p>x</p>", pq.Array([]string{"image1.png"}), sqlmock.AnyArg(), "X").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.UpdateHTML(context.Background(), models.KindDeposit, "X", models.HTMLResult{
		HTML:   "<p>x</p>",
		Images: []string{"image1.png"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseService_UpdateHTML_NilImagesStoredAsEmptyArray(t *testing.T) {
	svc, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reviews SET html`)).
		WithArgs("", pq.Array([]string{}), sqlmock.AnyArg(), "R").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.UpdateHTML(context.Background(), models.KindReview, "R", models.HTMLResult{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseService_UpdatePDF(t *testing.T) {
	svc, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reviews SET pdf_url = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs("paper.pdf", sqlmock.AnyArg(), "R").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.UpdatePDF(context.Background(), models.KindReview, "R", models.PDFResult{PDFFilename: "paper.pdf"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseService_RecordNotFound(t *testing.T) {
	svc, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE deposits SET pdf_url`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.UpdatePDF(context.Background(), models.KindDeposit, "missing", models.PDFResult{PDFFilename: "a.pdf"})
	assert.ErrorIs(t, err, services.ErrRecordNotFound)
}

func TestDatabaseService_ExecError(t *testing.T) {
	svc, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE deposits SET html`)).
		WillReturnError(errors.New("connection reset"))

	err := svc.UpdateHTML(context.Background(), models.KindDeposit, "X", models.HTMLResult{HTML: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDatabaseService_UnknownKind(t *testing.T) {
	svc, mock := newMockDB(t)

	err := svc.UpdatePDF(context.Background(), models.ResourceKind("article"), "X", models.PDFResult{})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
