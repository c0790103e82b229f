package gatt

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BridgeConn is the connection handle that writes arriving over HTTP appear to come from.
const BridgeConn uint16 = 1

// maxBody bounds how much of a request body is read.  Anything this long is rejected anyway.
const maxBody = 4096

// NewHandler returns an HTTP handler that turns requests into attribute accesses on t:
// POST /{uuid} writes the request body, GET /{uuid} reads.  This lets the configuration channels
// be exercised without a radio.
func NewHandler(t *Table, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Post("/{uuid}", func(w http.ResponseWriter, req *http.Request) {
		attr, ok := resolve(w, req, t)
		if !ok {
			return
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, maxBody))
		if err != nil {
			http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
			return
		}
		if err := t.Write(BridgeConn, attr, body); err != nil {
			log.Debug().Err(err).Uint16("attr", attr).Int("len", len(body)).Msg("bridged write rejected")
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/{uuid}", func(w http.ResponseWriter, req *http.Request) {
		attr, ok := resolve(w, req, t)
		if !ok {
			return
		}
		value, err := t.Read(BridgeConn, attr)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("content-type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(value); err != nil {
			log.Debug().Err(err).Msg("writing read response")
		}
	})
	return r
}

func resolve(w http.ResponseWriter, req *http.Request, t *Table) (uint16, bool) {
	u, err := uuid.Parse(chi.URLParam(req, "uuid"))
	if err != nil {
		http.Error(w, fmt.Sprintf("parse uuid: %v", err), http.StatusBadRequest)
		return 0, false
	}
	attr, ok := t.ValueHandle(u)
	if !ok {
		http.Error(w, fmt.Sprintf("no characteristic %s", u), http.StatusNotFound)
		return 0, false
	}
	return attr, true
}

func writeError(w http.ResponseWriter, err error) {
	var att ATTError
	if errors.As(err, &att) {
		w.Header().Set("x-att-error", fmt.Sprintf("0x%02x", byte(att)))
		code := http.StatusBadRequest
		switch att {
		case ErrReadNotPermitted, ErrWriteNotPermitted, ErrReqNotSupported, ErrUnlikely:
			code = http.StatusMethodNotAllowed
		case ErrInvalidAttrValueLen:
			code = http.StatusRequestEntityTooLarge
		}
		http.Error(w, att.Error(), code)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
