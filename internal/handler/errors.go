package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/comanda/internal/domain/apperr"
)

// errBadRequest marks a body that could not be read as JSON at all.
var errBadRequest = errors.New("malformed request body")

// writeError maps domain error classes onto HTTP statuses. Unclassified
// errors are logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status  int
		message = err.Error()
		field   string
	)
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ce *apperr.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		status, message, field = http.StatusUnprocessableEntity, ve.Error(), ve.Field
	case errors.As(err, &nf):
		status, message = http.StatusNotFound, nf.Error()
	case errors.As(err, &ce):
		status, message = http.StatusConflict, ce.Error()
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		status, message = http.StatusInternalServerError, "internal error"
	}
	writeErrorBody(w, status, message, field)
}

func writeErrorBody(w http.ResponseWriter, status int, message, field string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	if field != "" {
		e.FieldStart("field")
		e.Str(field)
	}
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
