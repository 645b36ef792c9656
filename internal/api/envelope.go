// Package api wires the gateway's HTTP and WebSocket surface: the
// go-chi/chi router, the JSON response envelope, the bearer-auth
// middleware, and the handlers binding internal/chain, internal/hub, and
// internal/relay into the routes of §6.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
)

// envelope is the wire shape every HTTP response uses, per §6: "all HTTP
// responses are JSON with envelope {status:"OK"|"FAIL", result?, errors?}".
type envelope struct {
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Errors interface{} `json:"errors,omitempty"`
}

func writeSuccess(w http.ResponseWriter, statusCode int, result interface{}) {
	writeEnvelope(w, statusCode, envelope{Status: "OK", Result: result})
}

func writeFailure(w http.ResponseWriter, statusCode int, errs interface{}) {
	writeEnvelope(w, statusCode, envelope{Status: "FAIL", Errors: errs})
}

func writeEnvelope(w http.ResponseWriter, statusCode int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Error("failed to encode response envelope", "err", err)
	}
}

// errKind classifies a handler failure into the HTTP status §7 assigns it.
type errKind int

const (
	validationFailure errKind = iota
	authFailure
	payloadTooLarge
	notFound
	upstreamFailure
	forbidden
)

func (k errKind) status() int {
	switch k {
	case authFailure:
		return http.StatusUnauthorized
	case payloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case notFound:
		return http.StatusNotFound
	case upstreamFailure:
		return http.StatusInternalServerError
	case forbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// apiError is a handler failure carrying the §7 error kind that decides
// its HTTP status.
type apiError struct {
	kind    errKind
	message string
}

func (e *apiError) Error() string { return e.message }

func failValidation(msg string) *apiError { return &apiError{validationFailure, msg} }
func failAuth(msg string) *apiError       { return &apiError{authFailure, msg} }
func failTooLarge(msg string) *apiError   { return &apiError{payloadTooLarge, msg} }
func failNotFound(msg string) *apiError   { return &apiError{notFound, msg} }
func failUpstream(msg string) *apiError   { return &apiError{upstreamFailure, msg} }
func failForbidden(msg string) *apiError  { return &apiError{forbidden, msg} }

func writeAPIError(w http.ResponseWriter, err *apiError) {
	writeFailure(w, err.kind.status(), err.message)
}
