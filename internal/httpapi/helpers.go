// Package httpapi exposes the gateway's HTTP endpoints over stdlib
// net/http + http.ServeMux, with a small decodeJSON/writeJSON/writeError
// handler convention shared across every route.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/enclaverun/hypervisor/internal/apierrors"
)

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeAPIError renders an *apierrors.Error using its own HTTP status
// mapping as the client-facing error body.
func writeAPIError(w http.ResponseWriter, err error) {
	apiErr, ok := apierrors.As(err)
	if !ok {
		apiErr = apierrors.Wrap(apierrors.KindInternal, "internal error", err)
	}
	writeJSON(w, apiErr.HTTPStatus(), map[string]string{"error": apiErr.Message})
}

// writePaymentRequired renders the 402 body shape:
// {"error": "...", "accepts": [...]}.
func writePaymentRequired(w http.ResponseWriter, reason string, accepts interface{}) {
	writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
		"error":   reason,
		"accepts": []interface{}{accepts},
	})
}
