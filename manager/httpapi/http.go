// Package httpapi exposes the manager as a JSON API over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// CallerHeader carries the identity requests are authorized against.
const CallerHeader = "X-Caller"

// HTTP serves the manager API.
type HTTP struct{ m *manager.Manager }

// NewHTTP returns the API of m.
func NewHTTP(m *manager.Manager) *HTTP { return &HTTP{m: m} }

// RegisterRoutes mounts the API under /api/v1.
func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(withCaller)

	// Address blocks
	api.HandleFunc("/blocks", h.createBlock).Methods(http.MethodPost)
	api.HandleFunc("/sites/{site}/blocks", h.listBlocks).Methods(http.MethodGet)
	api.HandleFunc("/blocks/{id}", h.getBlock).Methods(http.MethodGet)
	api.HandleFunc("/blocks/{id}", h.updateBlock).Methods(http.MethodPut)
	api.HandleFunc("/blocks/{id}", h.deleteBlock).Methods(http.MethodDelete)
	api.HandleFunc("/blocks/{id}/usage", h.usage).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.stats).Methods(http.MethodGet)

	// Addresses
	// POST /api/v1/blocks/{id}/allocate  { networked, interface_name, sub_interface, is_primary }
	api.HandleFunc("/blocks/{id}/allocate", h.allocate).Methods(http.MethodPost)
	api.HandleFunc("/blocks/{id}/reservations", h.reserve).Methods(http.MethodPost)
	api.HandleFunc("/blocks/{id}/dynamic", h.createDynamic).Methods(http.MethodPost)
	// GET /api/v1/blocks/{id}/addresses[?type=Address|ReservedAddress|DynamicAddress]
	api.HandleFunc("/blocks/{id}/addresses", h.blockAddresses).Methods(http.MethodGet)
	// POST /api/v1/addresses  { type, block, offset | alias_of, networked, interface_name, ... }
	api.HandleFunc("/addresses", h.createAddress).Methods(http.MethodPost)
	api.HandleFunc("/addresses/{id}", h.getAddress).Methods(http.MethodGet)
	api.HandleFunc("/addresses/{id}", h.updateAddress).Methods(http.MethodPut)
	api.HandleFunc("/addresses/{id}", h.release).Methods(http.MethodDelete)
	// GET /api/v1/lookup?ip=10.0.0.5[&site=...]
	api.HandleFunc("/lookup", h.lookup).Methods(http.MethodGet)

	// Hosts
	api.HandleFunc("/hosts", h.createHost).Methods(http.MethodPost)
	api.HandleFunc("/hosts/{id}", h.getHost).Methods(http.MethodGet)
	api.HandleFunc("/hosts/{id}", h.deleteHost).Methods(http.MethodDelete)
	api.HandleFunc("/hosts/{id}/addresses", h.hostAddresses).Methods(http.MethodGet)
	api.HandleFunc("/hosts/{id}/interfaces", h.hostInterfaces).Methods(http.MethodGet)

	// Networks
	api.HandleFunc("/networks", h.createNetwork).Methods(http.MethodPost)
	api.HandleFunc("/networks/{id}", h.getNetwork).Methods(http.MethodGet)
	api.HandleFunc("/networks/{id}", h.deleteNetwork).Methods(http.MethodDelete)
	api.HandleFunc("/networks/{id}/blocks", h.attachBlock).Methods(http.MethodPost)
	api.HandleFunc("/networks/{id}/blocks/{block}", h.detachBlock).Methods(http.MethodDelete)

	// Interfaces
	api.HandleFunc("/interfaces", h.createInterface).Methods(http.MethodPost)
	api.HandleFunc("/interfaces/{id}", h.getInterface).Methods(http.MethodGet)
	api.HandleFunc("/interfaces/{id}", h.updateInterface).Methods(http.MethodPut)
	api.HandleFunc("/interfaces/{id}", h.deleteInterface).Methods(http.MethodDelete)
	api.HandleFunc("/interfaces/{id}/config", h.interfaceConfig).Methods(http.MethodGet)
}

// withCaller moves the caller header into the request context and tags
// the request logger.
func withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get(CallerHeader)
		ctx := manager.WithCaller(r.Context(), caller)
		ctx = log.WithLogger(ctx, log.G(ctx).WithFields(logrus.Fields{
			"caller": caller,
			"method": r.Method,
			"path":   r.URL.Path,
		}))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusOf maps the error taxonomy to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.IsErrValidation(err):
		return http.StatusBadRequest
	case errors.IsErrPermissionDenied(err):
		return http.StatusForbidden
	case errors.IsErrNotFound(err):
		return http.StatusNotFound
	case errors.IsErrOverlap(err), errors.IsErrConflict(err), errors.IsErrExhausted(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.G(r.Context()).WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Fields: errors.ValidationFields(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body: " + err.Error()})
		return false
	}
	return true
}
