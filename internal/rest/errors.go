// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.
//
// go-mpc is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jeremyhahn/go-mpc/pkg/keymanager"
	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// maxBodyBytes bounds request bodies. A restore of 255 backups fits with
// room to spare.
const maxBodyBytes = 1 << 20

// kindNotFound is reported for unknown sessions.
const kindNotFound = "not_found"

// errorStatus maps an error to its HTTP status and envelope kind.
func errorStatus(err error) (int, string) {
	if errors.Is(err, keymanager.ErrUnknownSession) {
		return http.StatusNotFound, kindNotFound
	}
	kind := types.KindOf(err)
	switch kind {
	case types.KindInvalidParameter, types.KindSerialization:
		return http.StatusBadRequest, kind.String()
	case types.KindInvalidState:
		return http.StatusConflict, kind.String()
	case types.KindCryptographic:
		return http.StatusUnprocessableEntity, kind.String()
	case types.KindProtocol:
		return http.StatusNotImplemented, kind.String()
	default:
		return http.StatusInternalServerError, types.KindOther.String()
	}
}

// writeError answers with the error envelope. Internal failures are logged
// and reported without their message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err))
		message = http.StatusText(status)
	}
	writeJSON(w, ErrorBody{Error: ErrorDetail{Kind: kind, Message: message}}, status)
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads one JSON document from the request body into v.
// Malformed bodies are Serialization errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", types.ErrSerialization)
		}
		return fmt.Errorf("%w: decode request: %w", types.ErrSerialization, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: request body holds more than one document", types.ErrSerialization)
	}
	return nil
}
