// Package jsonapi implements a JSON over HTTP gateway to the aggregation
// service. It serves the endpoints
//
//	POST /compute             api.AggregationRequest -> api.AggregationResult
//	POST /population/average  api.PopulationRequest  -> api.PopulationResult
//
// Byte fields are standard padded base64 strings. Failed requests are
// answered with an api.ErrorResponse body.
package jsonapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/api"
	"github.com/ChristianMct/heagg/services"
	"github.com/ChristianMct/heagg/services/compute"
)

// DefaultMaxBodySize is the default maximum size of a request body.
const DefaultMaxBodySize = 64 * 1024 * 1024

// AggregationHandler is an interface for the gateway to handle aggregation
// requests. It is implemented by the compute service.
type AggregationHandler interface {
	Aggregate(context.Context, compute.Request) (*compute.Result, error)
}

// Handler is the http.Handler of the gateway.
type Handler struct {
	id          heagg.NodeID
	handler     AggregationHandler
	maxBodySize int64
	requests    atomic.Uint64

	mux *http.ServeMux
}

// NewHandler returns the gateway to the provided aggregation handler. A
// non-positive maxBodySize is replaced by DefaultMaxBodySize.
func NewHandler(id heagg.NodeID, handler AggregationHandler, maxBodySize int64) *Handler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	h := &Handler{id: id, handler: handler, maxBodySize: maxBodySize, mux: http.NewServeMux()}
	h.mux.HandleFunc("/compute", h.handleCompute)
	h.mux.HandleFunc("/population/average", h.handlePopulationAverage)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req api.AggregationRequest
	ctx, id, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	res, err := h.handler.Aggregate(ctx, api.ToComputeRequest(id, &req))
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	h.writeJSON(w, id, http.StatusOK, api.GetAggregationResult(res))
}

func (h *Handler) handlePopulationAverage(w http.ResponseWriter, r *http.Request) {
	var req api.PopulationRequest
	ctx, id, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	res, err := h.handler.Aggregate(ctx, api.PopulationToComputeRequest(id, &req))
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	h.writeJSON(w, id, http.StatusOK, api.GetPopulationResult(res))
}

// decode checks the method of r and decodes its body into v. It writes the
// error response and returns false if the request is invalid.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) (context.Context, heagg.RequestID, bool) {
	id := heagg.RequestID(r.Header.Get("X-Request-Id"))
	if id == "" {
		id = heagg.RequestID(fmt.Sprintf("%s-http-%d", h.id, h.requests.Add(1)))
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSON(w, id, http.StatusMethodNotAllowed, &api.ErrorResponse{Kind: "MethodNotAllowed", Message: fmt.Sprintf("method %s not allowed", r.Method)})
		return nil, id, false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.writeJSON(w, id, http.StatusRequestEntityTooLarge, &api.ErrorResponse{Kind: "RequestTooLarge", Message: err.Error()})
			return nil, id, false
		}
		h.writeJSON(w, id, http.StatusBadRequest, &api.ErrorResponse{Kind: "MalformedRequest", Stage: heagg.StageReceived.String(), Message: err.Error()})
		return nil, id, false
	}

	return services.ContextWithRequestID(r.Context(), id), id, true
}

var errorStatus = []struct {
	err    error
	status int
}{
	{heagg.ErrInvalidParameters, http.StatusBadRequest},
	{heagg.ErrMalformedContext, http.StatusBadRequest},
	{heagg.ErrMalformedCiphertext, http.StatusBadRequest},
	{heagg.ErrEmptyInput, http.StatusBadRequest},
	{heagg.ErrInvalidValue, http.StatusBadRequest},
	{heagg.ErrParameterMismatch, http.StatusConflict},
	{heagg.ErrInsufficientDepth, http.StatusUnprocessableEntity},
	{heagg.ErrUnsupportedOperation, http.StatusNotImplemented},
	{heagg.ErrTooManyInputs, http.StatusRequestEntityTooLarge},
}

// getHTTPStatus returns the HTTP status code of err.
func getHTTPStatus(err error) int {
	for _, es := range errorStatus {
		if errors.Is(err, es.err) {
			return es.status
		}
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, id heagg.RequestID, err error) {
	h.writeJSON(w, id, getHTTPStatus(err), api.GetErrorResponse(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, id heagg.RequestID, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", string(id))
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logf("request %s: could not write response: %v", id, err)
		return
	}
	if status == http.StatusOK {
		h.Logf("request %s: responded", id)
	} else {
		h.Logf("request %s: responded with status %d", id, status)
	}
}

// Logf writes a log line prefixed with the node id.
func (h *Handler) Logf(msg string, v ...any) {
	log.Printf("%s | [jsonapi] %s\n", h.id, fmt.Sprintf(msg, v...))
}
