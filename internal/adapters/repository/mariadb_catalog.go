package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"walkmate-bot/internal/core/domain"
)

const productColumns = `id, main_product, option_label, image, description, mrp, category`

// maxSearchResults bounds the admin listing
const maxSearchResults = 500

// likeEscaper makes user input match literally inside a LIKE pattern (ESCAPE '\\')
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(s rowScanner) (domain.Product, error) {
	var p domain.Product
	err := s.Scan(&p.ID, &p.Key, &p.Option, &p.ImageRef, &p.Description, &p.MRP, &p.Category)
	return p, err
}

// NormalizeKey is the stored form of an article number
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// ============================================================================
// CatalogRepository Implementation
// ============================================================================

// FindByKey returns all variants of an article in insertion order.
// Keys are stored lower-cased, so a plain equality keeps idx_products_main_product usable.
func (r *MariaDBRepository) FindByKey(ctx context.Context, key string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE main_product = ? ORDER BY id ASC`
	return r.queryProducts(ctx, "find products by key", query, NormalizeKey(key))
}

// FindByCategory returns the first product of a category, or nil
func (r *MariaDBRepository) FindByCategory(ctx context.Context, category string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE category = ? ORDER BY id ASC LIMIT 1`

	products, err := r.queryProducts(ctx, "find product by category", query, category)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

// ============================================================================
// CatalogAdmin Implementation
// ============================================================================

// Search lists products whose article, option, description or category contains the query.
// An empty query lists everything.
func (r *MariaDBRepository) Search(ctx context.Context, q string) ([]domain.Product, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		query := `SELECT ` + productColumns + ` FROM products ORDER BY id ASC LIMIT ?`
		return r.queryProducts(ctx, "list products", query, maxSearchResults)
	}

	like := "%" + likeEscaper.Replace(q) + "%"
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE main_product LIKE ? ESCAPE '\\'
			OR option_label LIKE ? ESCAPE '\\'
			OR description LIKE ? ESCAPE '\\'
			OR category LIKE ? ESCAPE '\\'
		ORDER BY id ASC
		LIMIT ?
	`
	return r.queryProducts(ctx, "search products", query, like, like, like, like, maxSearchResults)
}

// Create inserts a product; the article number is stored lower-cased
func (r *MariaDBRepository) Create(ctx context.Context, p *domain.Product) (int64, error) {
	query := `
		INSERT INTO products (main_product, option_label, image, description, mrp, category)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	p.Key = NormalizeKey(p.Key)
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))

	result, err := r.db.ExecContext(ctx, query, p.Key, p.Option, p.ImageRef, p.Description, p.MRP, p.Category)
	if err != nil {
		slog.Error("Failed to create product",
			"error", err,
			"article", p.Key,
		)
		return 0, fmt.Errorf("create product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	p.ID = id

	slog.Info("Product created",
		"product_id", id,
		"article", p.Key,
	)
	return id, nil
}

// Delete removes a product by id; false means it did not exist
func (r *MariaDBRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		slog.Error("Failed to delete product",
			"error", err,
			"product_id", id,
		)
		return false, fmt.Errorf("delete product: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		slog.Info("Product deleted", "product_id", id)
	}
	return rows > 0, nil
}

func (r *MariaDBRepository) queryProducts(ctx context.Context, op, query string, args ...interface{}) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("Failed to query products",
			"error", err,
			"op", op,
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return products, nil
}
