// Package handler exposes the order, settlement, receipt and report services
// over HTTP with a JSON body codec.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/auth"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/receipt"
	"github.com/xenking/comanda/internal/domain/report"
	"github.com/xenking/comanda/internal/domain/settlement"
)

// Handler serves the POS API.
type Handler struct {
	orders   *order.Service
	settler  *settlement.Service
	sales    settlement.SaleRepository
	receipts *receipt.Service
	reports  *report.Service
	auth     *Authenticator
	loc      *time.Location
}

// Deps are the services a Handler delegates to.
type Deps struct {
	Orders   *order.Service
	Settler  *settlement.Service
	Sales    settlement.SaleRepository
	Receipts *receipt.Service
	Reports  *report.Service
	Auth     *Authenticator
	// Location interprets date-only query parameters.
	Location *time.Location
}

// New creates a Handler.
func New(d Deps) *Handler {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	a := d.Auth
	if a == nil {
		a = NewAuthenticator(nil, nil, true)
	}
	return &Handler{
		orders:   d.Orders,
		settler:  d.Settler,
		sales:    d.Sales,
		receipts: d.Receipts,
		reports:  d.Reports,
		auth:     a,
		loc:      loc,
	}
}

// Register mounts every API route on mux. kitchen, when not nil, serves the
// live change feed.
func (h *Handler) Register(mux *http.ServeMux, kitchen http.Handler) {
	route := func(pattern, scope string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.auth.Require(scope, fn))
	}

	route("POST /api/orders", auth.ScopeOrders, h.createOrder)
	route("GET /api/orders", auth.ScopeOrders, h.listOrders)
	route("GET /api/orders/{id}", auth.ScopeOrders, h.getOrder)
	route("PATCH /api/orders/{id}/status", auth.ScopeOrders, h.updateOrderStatus)
	route("PUT /api/orders/{id}/items", auth.ScopeOrders, h.updateOrderItems)
	route("PATCH /api/orders/{id}/items/{itemId}/status", auth.ScopeKitchen, h.updateItemStatus)
	route("DELETE /api/orders/{id}", auth.ScopeOrders, h.deleteOrder)

	route("POST /api/orders/{id}/settle", auth.ScopeCashier, h.settle)
	route("POST /api/orders/{id}/settle-partial", auth.ScopeCashier, h.settlePartial)
	route("GET /api/sales/{id}", auth.ScopeCashier, h.getSale)
	route("POST /api/sales/{id}/receipt", auth.ScopeCashier, h.issueReceipt)
	route("GET /api/sales/{id}/receipt", auth.ScopeCashier, h.getReceipt)

	route("GET /api/reports/summary", auth.ScopeReports, h.summary)

	if kitchen != nil {
		mux.Handle("GET /ws/kitchen", h.auth.Require(auth.ScopeKitchen, kitchen))
	}
}

func writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, status, &e)
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation(name, "must be an integer")
	}
	return n, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperr.Validation(name, "must be a boolean")
	}
	return b, nil
}

// queryTime parses RFC 3339 instants or YYYY-MM-DD dates. A date is local
// midnight, or the following midnight when upper is set, so that date ranges
// include their last day.
func (h *Handler) queryTime(r *http.Request, name string, upper bool) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, h.loc)
	if err != nil {
		return time.Time{}, apperr.Validation(name, "must be RFC 3339 or YYYY-MM-DD")
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
