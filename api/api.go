// Package api exposes a tiersale Engine over HTTP with gorilla/mux.
//
// Amounts are JSON strings of smallest units. The buyer of a quote or
// purchase is named by the X-Participant header; authenticating that
// header is left to the host.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
)

// ParticipantHeader carries the buyer's address.
const ParticipantHeader = "X-Participant"

// API serves the sale endpoints.
type API struct {
	engine *tiersale.Engine
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// New creates an API over eng.
func New(eng *tiersale.Engine, opts ...Option) *API {
	a := &API{engine: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterRoutes sets up every sale route on r.
func (a *API) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sales", a.CreateSale).Methods(http.MethodPost)
	r.HandleFunc("/sales", a.ListSales).Methods(http.MethodGet)
	r.HandleFunc("/sales/{saleID}", a.GetSale).Methods(http.MethodGet)
	r.HandleFunc("/sales/{saleID}/progress", a.GetProgress).Methods(http.MethodGet)
	r.HandleFunc("/sales/{saleID}/quote", a.Quote).Methods(http.MethodPost)
	r.HandleFunc("/sales/{saleID}/purchases", a.Purchase).Methods(http.MethodPost)
	r.HandleFunc("/sales/{saleID}/purchases", a.ListPurchases).Methods(http.MethodGet)
	r.HandleFunc("/sales/{saleID}/participants", a.ListParticipants).Methods(http.MethodGet)
	r.HandleFunc("/sales/{saleID}/participants/{address}", a.GetParticipant).Methods(http.MethodGet)
}

// Handler returns a router serving the API under prefix.
func (a *API) Handler(prefix string) http.Handler {
	r := mux.NewRouter()
	if prefix == "" || prefix == "/" {
		a.RegisterRoutes(r)
	} else {
		a.RegisterRoutes(r.PathPrefix(prefix).Subrouter())
	}
	return r
}

// CreateSale handles POST /sales.
func (a *API) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	s, err := a.engine.InitializeSale(r.Context(), req.Owner, toTiers(req.Tiers), req.Settlement,
		tiersale.WithSaleMetadata(req.Metadata))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleResponse(s))
}

// ListSales handles GET /sales.
func (a *API) ListSales(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := a.page(w, r)
	if !ok {
		return
	}
	sales, err := a.engine.ListSales(r.Context(), sale.ListOpts{
		Owner:  r.URL.Query().Get("owner"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		a.fail(w, err)
		return
	}

	out := make([]SaleResponse, len(sales))
	for i, s := range sales {
		out[i] = toSaleResponse(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSale handles GET /sales/{saleID}.
func (a *API) GetSale(w http.ResponseWriter, r *http.Request) {
	saleID, ok := a.saleID(w, r)
	if !ok {
		return
	}
	s, err := a.engine.GetSale(r.Context(), saleID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleResponse(s))
}

// GetProgress handles GET /sales/{saleID}/progress.
func (a *API) GetProgress(w http.ResponseWriter, r *http.Request) {
	saleID, ok := a.saleID(w, r)
	if !ok {
		return
	}
	p, err := a.engine.Progress(r.Context(), saleID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(p))
}

// Quote handles POST /sales/{saleID}/quote.
func (a *API) Quote(w http.ResponseWriter, r *http.Request) {
	saleID, address, amount, ok := a.purchaseInput(w, r)
	if !ok {
		return
	}
	q, err := a.engine.Quote(r.Context(), saleID, address, amount)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

// Purchase handles POST /sales/{saleID}/purchases.
func (a *API) Purchase(w http.ResponseWriter, r *http.Request) {
	saleID, address, amount, ok := a.purchaseInput(w, r)
	if !ok {
		return
	}
	p, err := a.engine.Purchase(r.Context(), saleID, address, amount)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseResponse(p))
}

// ListPurchases handles GET /sales/{saleID}/purchases.
func (a *API) ListPurchases(w http.ResponseWriter, r *http.Request) {
	saleID, ok := a.saleID(w, r)
	if !ok {
		return
	}
	limit, offset, ok := a.page(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	purchases, err := a.engine.ListPurchases(r.Context(), saleID, purchase.ListOpts{
		Participant: q.Get("participant"),
		Status:      purchase.Status(q.Get("status")),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		a.fail(w, err)
		return
	}

	out := make([]PurchaseResponse, len(purchases))
	for i, p := range purchases {
		out[i] = toPurchaseResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// ListParticipants handles GET /sales/{saleID}/participants.
func (a *API) ListParticipants(w http.ResponseWriter, r *http.Request) {
	saleID, ok := a.saleID(w, r)
	if !ok {
		return
	}
	limit, offset, ok := a.page(w, r)
	if !ok {
		return
	}
	ledgers, err := a.engine.ListParticipants(r.Context(), saleID, participant.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		a.fail(w, err)
		return
	}

	out := make([]ParticipantResponse, len(ledgers))
	for i, l := range ledgers {
		out[i] = toParticipantResponse(l)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetParticipant handles GET /sales/{saleID}/participants/{address}.
func (a *API) GetParticipant(w http.ResponseWriter, r *http.Request) {
	saleID, ok := a.saleID(w, r)
	if !ok {
		return
	}
	l, err := a.engine.GetParticipant(r.Context(), saleID, mux.Vars(r)["address"])
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(l))
}

// ──────────────────────────────────────────────────
// Request helpers
// ──────────────────────────────────────────────────

func (a *API) saleID(w http.ResponseWriter, r *http.Request) (id.SaleID, bool) {
	saleID, err := id.ParseSaleID(mux.Vars(r)["saleID"])
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid sale id")
		return id.Nil, false
	}
	return saleID, true
}

func (a *API) purchaseInput(w http.ResponseWriter, r *http.Request) (saleID id.SaleID, address string, amount uint64, ok bool) {
	if saleID, ok = a.saleID(w, r); !ok {
		return
	}
	address = r.Header.Get(ParticipantHeader)
	if address == "" {
		a.writeError(w, http.StatusBadRequest, "missing "+ParticipantHeader+" header")
		return saleID, "", 0, false
	}
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request payload")
		return saleID, "", 0, false
	}
	return saleID, address, uint64(req.Amount), true
}

func (a *API) page(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *int
	}{{"limit", &limit}, {"offset", &offset}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeError(w, http.StatusBadRequest, "invalid "+p.key)
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}

// ──────────────────────────────────────────────────
// Responses
// ──────────────────────────────────────────────────

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, tiersale.ErrInconsistentState):
		return http.StatusInternalServerError
	case errors.Is(err, tiersale.ErrTransferFailed):
		return http.StatusBadGateway
	case tiersale.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, tiersale.ErrInvalidConfiguration),
		errors.Is(err, tiersale.ErrInvalidAmount),
		errors.Is(err, tiersale.ErrInvalidInput),
		errors.Is(err, tiersale.ErrInvalidUnits):
		return http.StatusBadRequest
	case errors.Is(err, tiersale.ErrSaleInactive),
		errors.Is(err, tiersale.ErrTierSoldOut),
		errors.Is(err, tiersale.ErrAlreadyExists),
		errors.Is(err, tiersale.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, tiersale.ErrExceededWalletLimit),
		errors.Is(err, tiersale.ErrArithmeticOverflow),
		errors.Is(err, tiersale.ErrDivisionByZero):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tiersale.ErrStoreNotReady),
		errors.Is(err, tiersale.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var se *tiersale.SettlementError
	if errors.As(err, &se) {
		p := toPurchaseResponse(se.Purchase)
		resp.Purchase = &p
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
