package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/wheelhouse/internal/domain/product"
	"github.com/xenking/wheelhouse/internal/query"
)

// productView is the wire shape of a catalog listing. Prices travel as
// floats; exact arithmetic stays inside the domain.
type productView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	Brand         string    `json:"brand,omitempty"`
	Model         string    `json:"model,omitempty"`
	Year          int       `json:"year,omitempty"`
	Price         float64   `json:"price,omitempty"`
	ExteriorColor string    `json:"exteriorColor,omitempty"`
	InteriorColor string    `json:"interiorColor,omitempty"`
	FuelType      string    `json:"fuelType,omitempty"`
	Transmission  string    `json:"transmission,omitempty"`
	Mileage       int       `json:"mileage,omitempty"`
	Category      string    `json:"category,omitempty"`
	Images        []string  `json:"images,omitempty"`
	Description   string    `json:"description,omitempty"`
	Features      []string  `json:"features,omitempty"`
	Quantity      int       `json:"quantity"`
	InStock       bool      `json:"inStock"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toProductView(p product.Product) productView {
	return productView{
		ID:            p.ID,
		Name:          p.Name,
		Brand:         p.Brand,
		Model:         p.Model,
		Year:          p.Year,
		Price:         p.Price.InexactFloat64(),
		ExteriorColor: p.ExteriorColor,
		InteriorColor: p.InteriorColor,
		FuelType:      string(p.FuelType),
		Transmission:  string(p.Transmission),
		Mileage:       p.Mileage,
		Category:      string(p.Category),
		Images:        p.Images,
		Description:   p.Description,
		Features:      p.Features,
		Quantity:      p.Quantity,
		InStock:       p.InStock,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// productRequest is the create payload. decimal accepts both quoted and bare
// numeric prices.
type productRequest struct {
	Name          string          `json:"name"`
	Brand         string          `json:"brand"`
	Model         string          `json:"model"`
	Year          int             `json:"year"`
	Price         decimal.Decimal `json:"price"`
	ExteriorColor string          `json:"exteriorColor"`
	InteriorColor string          `json:"interiorColor"`
	FuelType      string          `json:"fuelType"`
	Transmission  string          `json:"transmission"`
	Mileage       int             `json:"mileage"`
	Category      string          `json:"category"`
	Images        []string        `json:"images"`
	Description   string          `json:"description"`
	Features      []string        `json:"features"`
	Quantity      int             `json:"quantity"`
}

// productPatch is the update payload: absent fields are left untouched.
type productPatch struct {
	Name          *string          `json:"name"`
	Brand         *string          `json:"brand"`
	Model         *string          `json:"model"`
	Year          *int             `json:"year"`
	Price         *decimal.Decimal `json:"price"`
	ExteriorColor *string          `json:"exteriorColor"`
	InteriorColor *string          `json:"interiorColor"`
	FuelType      *string          `json:"fuelType"`
	Transmission  *string          `json:"transmission"`
	Mileage       *int             `json:"mileage"`
	Category      *string          `json:"category"`
	Images        []string         `json:"images"`
	Description   *string          `json:"description"`
	Features      []string         `json:"features"`
	Quantity      *int             `json:"quantity"`
}

// listProducts serves catalog search. All pipeline stages are wired; each is
// a no-op when its parameter is absent. An empty result is a 404, matching
// the storefront contract that a fruitless search is "nothing found" rather
// than an empty page.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	pipe := query.New(r.URL.Query()).
		Search(product.SearchableFields...).
		Filter().
		FilterSpecifications(product.SpecificationFields...).
		PriceRange().
		Sort().
		Paginate().
		Fields()

	items, meta, err := h.products.List(r.Context(), pipe)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(items) == 0 {
		writeError(w, r, product.ErrNotFound)
		return
	}

	views := make([]productView, len(items))
	for i, p := range items {
		views[i] = toProductView(p)
	}
	writeJSON(w, http.StatusOK, listEnvelope{Result: views, Meta: meta})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" || req.Brand == "" {
		writeErrorStatus(w, http.StatusBadRequest, "name and brand are required")
		return
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		writeErrorStatus(w, http.StatusBadRequest, "price must be positive")
		return
	}
	if req.Quantity < 0 {
		writeErrorStatus(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	p := &product.Product{
		Name:          req.Name,
		Brand:         req.Brand,
		Model:         req.Model,
		Year:          req.Year,
		Price:         req.Price,
		ExteriorColor: req.ExteriorColor,
		InteriorColor: req.InteriorColor,
		FuelType:      product.FuelType(req.FuelType),
		Transmission:  product.Transmission(req.Transmission),
		Mileage:       req.Mileage,
		Category:      product.Category(req.Category),
		Images:        req.Images,
		Description:   req.Description,
		Features:      req.Features,
		Quantity:      req.Quantity,
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductView(*p))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductView(*p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch productPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid json")
		return
	}
	if patch.Price != nil && patch.Price.LessThanOrEqual(decimal.Zero) {
		writeErrorStatus(w, http.StatusBadRequest, "price must be positive")
		return
	}
	if patch.Quantity != nil && *patch.Quantity < 0 {
		writeErrorStatus(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	upd := product.Update{
		Name:          patch.Name,
		Brand:         patch.Brand,
		Model:         patch.Model,
		Year:          patch.Year,
		Price:         patch.Price,
		Mileage:       patch.Mileage,
		Images:        patch.Images,
		Description:   patch.Description,
		Features:      patch.Features,
		Quantity:      patch.Quantity,
		ExteriorColor: patch.ExteriorColor,
		InteriorColor: patch.InteriorColor,
	}
	if patch.FuelType != nil {
		ft := product.FuelType(*patch.FuelType)
		upd.FuelType = &ft
	}
	if patch.Transmission != nil {
		tr := product.Transmission(*patch.Transmission)
		upd.Transmission = &tr
	}
	if patch.Category != nil {
		cat := product.Category(*patch.Category)
		upd.Category = &cat
	}

	p, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductView(*p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
