package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/validation"
)

// ── Response ─────────────────────────────────────────────────────────────────

// Response wraps http.ResponseWriter with JSON helpers.
type Response struct {
	w http.ResponseWriter
}

// NewResponse wraps a ResponseWriter.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}


// ── JSON responses ────────────────────────────────────────────────────────────

// JSON sends a JSON response.
//
//	res.JSON(http.StatusOK, map[string]any{"message": "ok"})
func (res *Response) JSON(status int, data any) {
	res.w.Header().Set("Content-Type", "application/json")
	res.w.WriteHeader(status)
	_ = json.NewEncoder(res.w).Encode(data)
}

// Success sends 200 JSON: {"data": v}
func (res *Response) Success(v any) {
	res.JSON(http.StatusOK, envelope{"data": v})
}

// Created sends 201 JSON: {"data": v}
func (res *Response) Created(v any) {
	res.JSON(http.StatusCreated, envelope{"data": v})
}

// NoContent sends 204 with no body.
func (res *Response) NoContent() {
	res.w.WriteHeader(http.StatusNoContent)
}

// Error sends a JSON error response.
//
//	res.Error(http.StatusNotFound, "Resource not found")
func (res *Response) Error(status int, message string) {
	res.JSON(status, envelope{"message": message})
}

// NotFound sends 404.
func (res *Response) NotFound(message ...string) {
	msg := first(message, "Not found.")
	res.JSON(http.StatusNotFound, envelope{"message": msg})
}

// ServerError sends 500.
func (res *Response) ServerError(message ...string) {
	msg := first(message, "Server Error.")
	res.JSON(http.StatusInternalServerError, envelope{"message": msg})
}

// ValidationError sends 422 with the error bag.
//
//	res.ValidationError(validator.Errors())
func (res *Response) ValidationError(errors *validation.Errors) {
	res.JSON(http.StatusUnprocessableEntity, errors)
}

// ── Container errors ─────────────────────────────────────────────────────────

// Failure renders err. Container errors carry their code, path and
// candidates; the status follows the code.
//
//	{"message": "...", "code": "CLASS_NOT_FOUND", "path": ["UserManager"]}
func (res *Response) Failure(err error) {
	var verr *validation.Errors
	if errors.As(err, &verr) {
		res.ValidationError(verr)
		return
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		res.ServerError(err.Error())
		return
	}
	body := envelope{"message": err.Error(), "code": e.Code}
	if len(e.Path) > 0 {
		body["path"] = e.Path
	}
	if len(e.Candidates) > 0 {
		body["candidates"] = e.Candidates
	}
	res.JSON(StatusOf(e.Code), body)
}

// StatusOf maps an error code to an HTTP status.
func StatusOf(code errs.Code) int {
	switch code {
	case errs.CodeClassNotFound, errs.CodeMethodNotFound, errs.CodeFactoryNotFound, errs.CodeScopeNotFound:
		return http.StatusNotFound
	case errs.CodeMalformedExpression, errs.CodeInvalidInjection:
		return http.StatusUnprocessableEntity
	case errs.CodePrivateClass:
		return http.StatusForbidden
	case errs.CodeDuplicateScope, errs.CodeScopeReferred, errs.CodeScopeDestroyed, errs.CodeCyclicDependency:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ── Helpers ──────────────────────────────────────────────────────────────────

type envelope map[string]any

func first(ss []string, fallback string) string {
	if len(ss) > 0 && ss[0] != "" {
		return ss[0]
	}
	return fallback
}
