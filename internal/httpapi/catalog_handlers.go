package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"lojinha.org/internal/audit"
	"lojinha.org/internal/catalog"
)

type historyResponse struct {
	Items []audit.Record `json:"items"`
}

func (a *API) handleProductsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listProducts(w, r)
	case http.MethodPost:
		a.createProduct(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProductResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/products/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/history") {
		id, ok := parseID(w, r, strings.TrimSuffix(path, "/history"))
		if !ok {
			return
		}
		a.productHistory(w, r, id)
		return
	}

	if strings.Contains(strings.Trim(path, "/"), "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	id, ok := parseID(w, r, path)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getProduct(w, r, id)
	case http.MethodPut:
		a.updateProduct(w, r, id)
	case http.MethodDelete:
		a.deleteProduct(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := a.catalog.ListProducts(r.Context())
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if items == nil {
		items = []catalog.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request, id int64) {
	d, err := a.catalog.GetProduct(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	var in catalog.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	d, err := a.catalog.CreateProduct(r.Context(), actor, in)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/products/"+strconv.FormatInt(d.ID, 10))
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request, id int64) {
	actor, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	var in catalog.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	d, err := a.catalog.UpdateProduct(r.Context(), actor, id, in)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) deleteProduct(w http.ResponseWriter, r *http.Request, id int64) {
	actor, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if err := a.catalog.DeleteProduct(r.Context(), actor, id); err != nil {
		handleCatalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) productHistory(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	records, err := a.catalog.ProductHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Items: records})
}

func (a *API) handleCategoriesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listCategories(w, r)
	case http.MethodPost:
		a.createCategory(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCategoryResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/categories/")
	id, ok := parseID(w, r, path)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPut:
		a.updateCategory(w, r, id)
	case http.MethodDelete:
		a.deleteCategory(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	items, err := a.catalog.ListCategories(r.Context())
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if items == nil {
		items = []catalog.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}

	var in catalog.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.catalog.CreateCategory(r.Context(), in)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) updateCategory(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}

	var in catalog.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.catalog.UpdateCategory(r.Context(), id, in)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) deleteCategory(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	if err := a.catalog.DeleteCategory(r.Context(), id); err != nil {
		handleCatalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePromotions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items, err := a.catalog.ListDeals(r.Context())
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if items == nil {
		items = []catalog.Deal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// --- helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 32<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *catalog.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, r, http.StatusBadRequest, vErr.Message)
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, catalog.ErrCategoryTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

