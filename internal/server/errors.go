package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
	"github.com/ivanovaleksey/iam-sub000/internal/services/iam"
)

// JSON-RPC protocol error codes plus the domain codes carried in-band. The
// domain codes mirror HTTP status semantics so SDK clients can share one
// mapping table for both surfaces.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603

	codeBadRequest   = 400
	codeUnauthorized = 401
	codeForbidden    = 403
	codeNotFound     = 404
	codeConflict     = 422
)

// rpcError is the error member of a JSON-RPC response. It implements error so
// method handlers can return protocol-level failures (bad params) directly
// through the regular error path.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// invalidParams builds a -32602 error in the conventional message style,
// e.g. "Invalid params: missing field `fq`".
func invalidParams(format string, args ...any) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "Invalid params: " + fmt.Sprintf(format, args...)}
}

// toRPCError translates a handler error into the wire error. Domain sentinels
// map onto their codes with the error text intact; anything unrecognized is
// an internal error and must not leak its detail to the caller.
func toRPCError(err error) *rpcError {
	var rerr *rpcError
	if errors.As(err, &rerr) {
		return rerr
	}
	switch {
	case errors.Is(err, iam.ErrInvalidArgument):
		return &rpcError{Code: codeBadRequest, Message: err.Error()}
	case errors.Is(err, auth.ErrInvalidToken):
		return &rpcError{Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, abac.ErrForbidden):
		return &rpcError{Code: codeForbidden, Message: err.Error()}
	case errors.Is(err, repository.ErrNotFound):
		return &rpcError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, repository.ErrAlreadyExists):
		return &rpcError{Code: codeConflict, Message: err.Error()}
	}
	return &rpcError{Code: codeInternal, Message: "Internal error"}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTTPError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps a service error onto an HTTP status for the plain
// HTTP endpoints (token lifecycle). An unknown provider label is a missing
// resource here: the label is part of the request path.
func writeDomainError(w http.ResponseWriter, logger *log.Logger, err error) {
	switch {
	case errors.Is(err, iam.ErrInvalidArgument):
		writeHTTPError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		writeHTTPError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, abac.ErrForbidden):
		writeHTTPError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrUnknownProvider), errors.Is(err, repository.ErrNotFound):
		writeHTTPError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrAlreadyExists):
		writeHTTPError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.Error("request failed", "err", err)
		writeHTTPError(w, http.StatusInternalServerError, "internal error")
	}
}
