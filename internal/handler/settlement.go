package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/comanda/internal/domain/receipt"
	"github.com/xenking/comanda/internal/domain/settlement"
)

func decodePayment(d *jx.Decoder, key string, method *settlement.PaymentMethod, issue *bool) (bool, error) {
	var err error
	switch key {
	case "paymentMethod":
		var v string
		v, err = d.Str()
		*method = settlement.PaymentMethod(v)
	case "issueReceipt":
		*issue, err = d.Bool()
	default:
		return false, nil
	}
	return true, fieldErr(key, err)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	req := settlement.Request{OrderID: r.PathValue("id")}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		ok, err := decodePayment(d, key, &req.PaymentMethod, &req.IssueReceipt)
		if !ok {
			return d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	sale, err := h.settler.Settle(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeSale(&e, sale)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) settlePartial(w http.ResponseWriter, r *http.Request) {
	req := settlement.PartialRequest{OrderID: r.PathValue("id")}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key == "items" {
			var err error
			req.Items, err = decodeSelections(d)
			return err
		}
		ok, err := decodePayment(d, key, &req.PaymentMethod, &req.IssueReceipt)
		if !ok {
			return d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.settler.SettlePartial(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeResult(&e, res)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeSale(&e, sale)
	writeJSON(w, http.StatusOK, &e)
}

// receipt returns the receipt of a sale, issuing it on first request.
// ?format=text renders the printable form.
// issueReceipt returns the receipt of a sale, issuing it on first call.
func (h *Handler) issueReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := h.receipts.GetOrCreate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeReceipt(w, r, rc)
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := h.receipts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeReceipt(w, r, rc)
}

func (h *Handler) writeReceipt(w http.ResponseWriter, r *http.Request, rc *receipt.Receipt) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(receipt.Format(rc, h.loc)))
		return
	}
	var e jx.Encoder
	encodeReceipt(&e, rc)
	writeJSON(w, http.StatusOK, &e)
}
