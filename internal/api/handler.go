package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/eugenenazirov/npk-mixer/internal/catalog"
	"github.com/eugenenazirov/npk-mixer/internal/mixture"
	"github.com/eugenenazirov/npk-mixer/internal/nutrient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Handler wires the optimizer and the catalog store into HTTP handlers.
type Handler struct {
	calculator mixture.Calculator
	catalog    catalog.Store
	logger     *zap.Logger

	clock         func() time.Time
	solverTimeout time.Duration

	mu               sync.RWMutex
	catalogUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithSolverTimeout bounds each mixture calculation. Zero means no bound.
func WithSolverTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.solverTimeout = d
	}
}

// WithHandlerLogger sets the logger used for internal errors.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(calc mixture.Calculator, store catalog.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		calculator: calc,
		catalog:    store,
		logger:     zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.catalogUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Products(r.Context())
	if err != nil {
		h.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productsResponse{
		Products:  products,
		UpdatedAt: h.currentCatalogUpdatedAt(),
	})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeStrict(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}
	if err := h.catalog.Create(r.Context(), p); err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	h.markCatalogUpdated()

	created, err := h.catalog.Get(r.Context(), p.Name)
	if err != nil {
		h.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeStrict(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}
	if err := h.catalog.Update(r.Context(), r.PathValue("name"), p); err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	h.markCatalogUpdated()

	updated, err := h.catalog.Get(r.Context(), p.Name)
	if err != nil {
		h.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), r.PathValue("name")); err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	h.markCatalogUpdated()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReplaceProducts(w http.ResponseWriter, r *http.Request) {
	var req replaceProductsRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}
	if len(req.Products) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid catalog", "products must contain at least one product")
		return
	}
	if err := h.catalog.Replace(r.Context(), req.Products); err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	h.markCatalogUpdated()

	products, err := h.catalog.Products(r.Context())
	if err != nil {
		h.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productsResponse{
		Products:  products,
		UpdatedAt: h.currentCatalogUpdatedAt(),
		Message:   "Catalog replaced successfully",
	})
}

func (h *Handler) handleExportProducts(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := catalog.Export(r.Context(), h.catalog, &buf, h.clock()); err != nil {
		h.writeInternalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="catalog.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleImportProducts(w http.ResponseWriter, r *http.Request) {
	n, err := catalog.Import(r.Context(), h.catalog, r.Body)
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	h.markCatalogUpdated()
	writeJSON(w, http.StatusOK, importResponse{
		Imported:  n,
		UpdatedAt: h.currentCatalogUpdatedAt(),
	})
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	ctx := r.Context()
	if h.solverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.solverTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := h.calculator.CalculateBestMixture(ctx, req.Nitrogen, req.Phosphorus, req.Potassium, req.TotalMass)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, mixture.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error(),
				"nitrogen, phosphorus, potassium and totalMass must be JSON numbers")
			return
		}
		h.writeInternalError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Succeeded {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, calculateResponse{
		Result:            result,
		CalculationTimeMs: elapsed.Milliseconds(),
	})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	masses, err := nutrient.ResolveAbsoluteMasses(req.NitrogenPercent, req.PhosphorusPercent, req.PotassiumPercent, req.TotalMass)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	resp := resolveResponse{Masses: masses}

	coefficients, apply, err := parseDiscount(req.Discount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid discount", err.Error(),
			`use true for the default coefficients or an object with keys "N", "P" and "K"`)
		return
	}
	if apply {
		discounted, err := nutrient.ApplyAvailabilityDiscount(masses, coefficients)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid discount", err.Error())
			return
		}
		resp.Discounted = &discounted
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseDiscount accepts null, false, true or a {"N","P","K"} coefficient object.
func parseDiscount(raw json.RawMessage) (nutrient.Coefficients, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "false":
		return nutrient.Coefficients{}, false, nil
	case "true":
		return nutrient.DefaultCoefficients(), true, nil
	}

	var values map[string]decimal.Decimal
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nutrient.Coefficients{}, false, fmt.Errorf("%w: discount must be a boolean or an object", nutrient.ErrInvalidArgument)
	}
	coefficients, err := nutrient.CoefficientsFromMap(values)
	if err != nil {
		return nutrient.Coefficients{}, false, err
	}
	return coefficients, true, nil
}

func (h *Handler) currentCatalogUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.catalogUpdatedAt
}

func (h *Handler) markCatalogUpdated() {
	h.mu.Lock()
	h.catalogUpdatedAt = h.clock()
	h.mu.Unlock()
}

func (h *Handler) writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "Product not found", err.Error())
	case errors.Is(err, catalog.ErrDuplicate):
		writeError(w, http.StatusConflict, "Duplicate product", err.Error(), "product names must be unique")
	case errors.Is(err, catalog.ErrInvalidProduct):
		writeError(w, http.StatusBadRequest, "Invalid product", err.Error(),
			"percentages must be within 0..100 and prices positive, both with at most two decimals")
	default:
		h.writeInternalError(w, r, err)
	}
}

func (h *Handler) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)
	writeInternalError(w, err)
}

func decodeStrict(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// calculateRequest keeps raw values so that non-numeric input reaches the
// optimizer's type check instead of failing JSON decoding.
type calculateRequest struct {
	Nitrogen   any `json:"nitrogen"`
	Phosphorus any `json:"phosphorus"`
	Potassium  any `json:"potassium"`
	TotalMass  any `json:"totalMass"`
}

type calculateResponse struct {
	mixture.Result
	CalculationTimeMs int64 `json:"calculationTimeMs"`
}

type resolveRequest struct {
	NitrogenPercent   decimal.Decimal `json:"nitrogenPercent"`
	PhosphorusPercent decimal.Decimal `json:"phosphorusPercent"`
	PotassiumPercent  decimal.Decimal `json:"potassiumPercent"`
	TotalMass         decimal.Decimal `json:"totalMass"`
	Discount          json.RawMessage `json:"discount,omitempty"`
}

type resolveResponse struct {
	Masses     nutrient.Masses  `json:"masses"`
	Discounted *nutrient.Masses `json:"discounted,omitempty"`
}

type replaceProductsRequest struct {
	Products []catalog.Product `json:"products"`
}

type productsResponse struct {
	Products  []catalog.Product `json:"products"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Message   string            `json:"message,omitempty"`
}

type importResponse struct {
	Imported  int       `json:"imported"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
