package handler

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"walkmate-bot/internal/core/domain"
	"walkmate-bot/internal/core/ports"
)

const exportSheet = "Products"

var exportHeader = []interface{}{"ID", "Article", "Option", "Description", "MRP", "Category", "Image"}

// CatalogHandler serves the operator catalog API
type CatalogHandler struct {
	catalog    ports.CatalogAdmin
	adminToken string
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog ports.CatalogAdmin, adminToken string) *CatalogHandler {
	return &CatalogHandler{
		catalog:    catalog,
		adminToken: adminToken,
	}
}

// RequireAdmin wraps a handler with bearer / X-Api-Key token authentication
func (h *CatalogHandler) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !checkAdminToken(r, h.adminToken) {
			writeEnvelope(w, UnauthorizedResponse("Unauthorized"))
			return
		}
		next(w, r)
	}
}

// List handles GET /api/products?search=
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Search(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeEnvelope(w, InternalErrorResponse("Failed to load products"))
		return
	}
	writeEnvelope(w, NewSuccessResponse(products))
}

// CreateProductRequest is the body of POST /api/products
type CreateProductRequest struct {
	Article     string `json:"article"`
	Option      string `json:"option"`
	Image       string `json:"image"`
	Description string `json:"description"`
	MRP         string `json:"mrp"`
	Category    string `json:"category"`
}

// Create handles POST /api/products
func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeEnvelope(w, BadRequestResponse("Invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Article) == "" || strings.TrimSpace(req.Image) == "" {
		writeEnvelope(w, BadRequestResponse("article and image are required"))
		return
	}

	p := &domain.Product{
		Key:         req.Article,
		Option:      strings.TrimSpace(req.Option),
		ImageRef:    strings.TrimSpace(req.Image),
		Description: strings.TrimSpace(req.Description),
		MRP:         strings.TrimSpace(req.MRP),
		Category:    req.Category,
	}
	if _, err := h.catalog.Create(r.Context(), p); err != nil {
		writeEnvelope(w, InternalErrorResponse("Failed to create product"))
		return
	}

	resp := NewSuccessResponse(p)
	resp.Code = http.StatusCreated
	resp.Message = "Created"
	writeEnvelope(w, resp)
}

// Delete handles DELETE /api/products/{id}
func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeEnvelope(w, BadRequestResponse("Invalid product id"))
		return
	}

	deleted, err := h.catalog.Delete(r.Context(), id)
	if err != nil {
		writeEnvelope(w, InternalErrorResponse("Failed to delete product"))
		return
	}
	if !deleted {
		writeEnvelope(w, NotFoundResponse("Product not found"))
		return
	}
	writeEnvelope(w, NewSuccessResponse(map[string]int64{"id": id}))
}

// Export handles GET /api/products/export and streams an xlsx workbook
func (h *CatalogHandler) Export(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Search(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeEnvelope(w, InternalErrorResponse("Failed to load products"))
		return
	}

	f, err := BuildCatalogWorkbook(products)
	if err != nil {
		slog.Error("Failed to build catalog workbook", "error", err)
		writeEnvelope(w, InternalErrorResponse("Failed to export products"))
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("products_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := f.Write(w); err != nil {
		slog.Error("Failed to write catalog workbook", "error", err)
	}
}

// BuildCatalogWorkbook renders products into a single-sheet workbook
func BuildCatalogWorkbook(products []domain.Product) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		f.Close()
		return nil, err
	}

	for i, p := range products {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		row := []interface{}{p.ID, p.Key, p.Option, p.Description, p.MRP, p.Category, p.ImageRef}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			f.Close()
			return nil, err
		}
	}

	return f, nil
}

func checkAdminToken(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	got := r.Header.Get("X-Api-Key")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		got = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
