package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/comanda/internal/domain/order"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			req.Items, err = decodeItemInputs(d)
			return err
		case "orderType":
			var v string
			v, err = d.Str()
			req.Type = order.Type(v)
		case "tableNumber":
			req.TableNumber, err = optStr(d)
		case "customerName":
			req.CustomerName, err = optStr(d)
		default:
			return d.Skip()
		}
		return fieldErr(key, err)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeOrder(w, http.StatusCreated, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	req, err := h.listRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.orders.List(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodePage(&e, page)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) listRequest(r *http.Request) (order.ListRequest, error) {
	var (
		req order.ListRequest
		err error
	)
	req.Status = order.Status(r.URL.Query().Get("status"))
	if req.Today, err = queryBool(r, "today"); err != nil {
		return req, err
	}
	if req.IncludeSettlements, err = queryBool(r, "includeSettlements"); err != nil {
		return req, err
	}
	if req.From, err = h.queryTime(r, "from", false); err != nil {
		return req, err
	}
	if req.To, err = h.queryTime(r, "to", true); err != nil {
		return req, err
	}
	if req.Page, err = queryInt(r, "page"); err != nil {
		return req, err
	}
	if req.Limit, err = queryInt(r, "limit"); err != nil {
		return req, err
	}
	return req, nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// decodeStatus reads {"status": "..."}.
func decodeStatus(w http.ResponseWriter, r *http.Request) (string, error) {
	var status string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" && key != "itemStatus" {
			return d.Skip()
		}
		var err error
		status, err = d.Str()
		return fieldErr("status", err)
	})
	return status, err
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	status, err := decodeStatus(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), order.Status(status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

func (h *Handler) updateOrderItems(w http.ResponseWriter, r *http.Request) {
	var items []order.ItemInput
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		var err error
		items, err = decodeItemInputs(d)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateItems(r.Context(), r.PathValue("id"), items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

func (h *Handler) updateItemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := decodeStatus(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateItemStatus(r.Context(), r.PathValue("id"), r.PathValue("itemId"), order.ItemStatus(status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
