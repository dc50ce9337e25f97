// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/praxislabs/praxis/pkg/errors"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("http.response.encode_failed", "error", err)
	}
}

// writeError maps typed runtime errors onto their HTTP status. Untyped
// errors become 500s with the raw message withheld.
func writeError(w http.ResponseWriter, err error) {
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		writeJSON(w, typed.StatusCode, errorEnvelope{Error: errorBody{
			Code:    string(typed.Code),
			Message: typed.Message,
		}})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: errorBody{
		Code:    string(errors.CodeInternal),
		Message: "internal error",
	}})
}

func asTyped(err error, target **errors.Error) bool {
	return stderrors.As(err, target)
}

// writeSSE emits one server-sent event with a JSON payload.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("http.sse.encode_failed", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New(errors.CodeInvalidInput, "malformed request body", err)
	}
	return nil
}
