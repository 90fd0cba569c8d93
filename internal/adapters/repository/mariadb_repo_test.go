package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkmate-bot/internal/core/domain"
)

var productRowColumns = []string{"id", "main_product", "option_label", "image", "description", "mrp", "category"}

// newMockRepo creates a repository over sqlmock with expectation checking on cleanup
func newMockRepo(t *testing.T) (*MariaDBRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewMariaDBRepository(db), mock
}

// ============================================================================
// Catalog
// ============================================================================

func TestFindByKey_ReturnsVariantsInOrder(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE main_product = \? ORDER BY id ASC`).
		WithArgs("2205").
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow(1, "2205", "black", "https://cdn/2205-black.jpg", "2205 Black", "799", "sandals").
			AddRow(2, "2205", "blue", "https://cdn/2205-blue.jpg", "2205 Blue", "799", "sandals"))

	products, err := repo.FindByKey(context.Background(), " 2205 ")

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "2205 Black", products[0].Description)
	assert.Equal(t, "https://cdn/2205-blue.jpg", products[1].ImageRef)
}

func TestFindByKey_LowercasesInput(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE main_product = \?`).
		WithArgs("ab12").
		WillReturnRows(sqlmock.NewRows(productRowColumns))

	products, err := repo.FindByKey(context.Background(), "AB12")

	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestFindByCategory_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE category = \? ORDER BY id ASC LIMIT 1`).
		WithArgs(domain.CatalogueCategory).
		WillReturnRows(sqlmock.NewRows(productRowColumns))

	product, err := repo.FindByCategory(context.Background(), domain.CatalogueCategory)

	require.NoError(t, err)
	assert.Nil(t, product)
}

func TestFindByCategory_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE category`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.FindByCategory(context.Background(), domain.CatalogueCategory)

	assert.ErrorContains(t, err, "connection reset")
}

func TestSearch_UsesLikeOnAllColumns(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM products\s+WHERE main_product LIKE \? ESCAPE .+\s+OR option_label LIKE \? ESCAPE .+\s+OR description LIKE \? ESCAPE .+\s+OR category LIKE \? ESCAPE`).
		WithArgs("%blue%", "%blue%", "%blue%", "%blue%", maxSearchResults).
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow(2, "2205", "blue", "img", "2205 Blue", "799", "sandals"))

	products, err := repo.Search(context.Background(), "blue")

	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestSearch_EscapesWildcards(t *testing.T) {
	repo, mock := newMockRepo(t)

	pattern := `%50\%\_off\\%`
	mock.ExpectQuery(`SELECT .+ FROM products\s+WHERE main_product LIKE`).
		WithArgs(pattern, pattern, pattern, pattern, maxSearchResults).
		WillReturnRows(sqlmock.NewRows(productRowColumns))

	products, err := repo.Search(context.Background(), `50%_off\`)

	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestCreate_NormalizesKey(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO products`).
		WithArgs("ab12", "red", "https://cdn/ab12.jpg", "AB12 Red", "499", "catalogue").
		WillReturnResult(sqlmock.NewResult(42, 1))

	p := &domain.Product{Key: "  AB12 ", Option: "red", ImageRef: "https://cdn/ab12.jpg", Description: "AB12 Red", MRP: "499", Category: "Catalogue"}
	id, err := repo.Create(context.Background(), p)

	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "ab12", p.Key)
}

func TestDelete_ReportsMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM products WHERE id = \?`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), 7)

	require.NoError(t, err)
	assert.False(t, deleted)
}

// ============================================================================
// Dedup
// ============================================================================

func TestIsDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT 1 FROM processed_messages WHERE id = \?`).
		WithArgs("wamid.A").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM processed_messages WHERE id = \?`).
		WithArgs("wamid.B").
		WillReturnError(sql.ErrNoRows)

	dup, err := repo.IsDuplicate(context.Background(), "wamid.A")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = repo.IsDuplicate(context.Background(), "wamid.B")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestMarkProcessed_InsertIgnore(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT IGNORE INTO processed_messages`).
		WithArgs("wamid.A", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT IGNORE INTO processed_messages`).
		WithArgs("wamid.A", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.MarkProcessed(context.Background(), "wamid.A", time.Hour)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.MarkProcessed(context.Background(), "wamid.A", time.Hour)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRelease_DeletesMarker(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM processed_messages WHERE id = \?`).
		WithArgs("wamid.A").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM processed_messages`).
		WithArgs("wamid.B").
		WillReturnError(errors.New("lock wait timeout"))

	require.NoError(t, repo.Release(context.Background(), "wamid.A"))
	assert.ErrorContains(t, repo.Release(context.Background(), "wamid.B"), "lock wait timeout")
}

// ============================================================================
// State
// ============================================================================

func TestStateGet_Absent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT state, updated_at FROM user_state WHERE user_id = \?`).
		WithArgs("919").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.Get(context.Background(), "919")

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStateGet_Parses(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT state, updated_at FROM user_state`).
		WithArgs("919").
		WillReturnRows(sqlmock.NewRows([]string{"state", "updated_at"}).AddRow("awaiting_article", int64(1700000000)))

	rec, err := repo.Get(context.Background(), "919")

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StateAwaitingArticle, rec.State)
	assert.Equal(t, int64(1700000000), rec.UpdatedAt.Unix())
}

func TestStateGet_CorruptValue(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT state, updated_at FROM user_state`).
		WillReturnRows(sqlmock.NewRows([]string{"state", "updated_at"}).AddRow("bogus", int64(1)))

	_, err := repo.Get(context.Background(), "919")

	assert.ErrorIs(t, err, domain.ErrCorruptState)
}

func TestStateSet_Upserts(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Unix(1700000000, 0)

	mock.ExpectExec(`INSERT INTO user_state .+ ON DUPLICATE KEY UPDATE`).
		WithArgs("919", "awaiting_option", int64(1700000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Set(context.Background(), "919", domain.StateAwaitingOption, at))
}

func TestStateClear(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM user_state WHERE user_id = \?`).
		WithArgs("919").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Clear(context.Background(), "919"))
}

// ============================================================================
// Audit & retention
// ============================================================================

func TestSaveLog(t *testing.T) {
	repo, mock := newMockRepo(t)
	errMsg := "boom"

	mock.ExpectExec(`INSERT INTO webhook_logs`).
		WithArgs("trace1", []byte(`{"a":1}`), domain.WebhookStatusFailed, &errMsg, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SaveLog(context.Background(), &domain.WebhookLog{
		TraceID:     "trace1",
		PayloadJSON: []byte(`{"a":1}`),
		Status:      domain.WebhookStatusFailed,
		ErrorLog:    &errMsg,
		CreatedAt:   time.Now(),
	})

	require.NoError(t, err)
}

func TestPurgeStatesBefore_UsesUnixSeconds(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Unix(1700000000, 0)

	mock.ExpectExec(`DELETE FROM user_state WHERE updated_at < \? LIMIT \?`).
		WithArgs(int64(1700000000), 1000).
		WillReturnResult(sqlmock.NewResult(0, 3))

	rows, err := repo.PurgeStatesBefore(context.Background(), cutoff, 1000)

	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)
}

func TestPurgeProcessedBefore(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM processed_messages WHERE created_at < \? LIMIT \?`).
		WithArgs(sqlmock.AnyArg(), 500).
		WillReturnResult(sqlmock.NewResult(0, 12))

	rows, err := repo.PurgeProcessedBefore(context.Background(), time.Now(), 500)

	require.NoError(t, err)
	assert.Equal(t, int64(12), rows)
}
