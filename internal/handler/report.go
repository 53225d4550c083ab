package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// summary reports activity for [from, to), defaulting to the current day.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	from, err := h.queryTime(r, "from", false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := h.queryTime(r, "to", true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := h.reports.Summary(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeSummary(&e, sum)
	writeJSON(w, http.StatusOK, &e)
}
