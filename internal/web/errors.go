package web

// errors.go maps errors to user messages with codes for support reference.
//
// Codes by category:
//
//	GRID001 grid not found          GRID002 grid not mounted
//	GRID003 unknown row             GRID004 unknown column
//	GRID005 no open editor          GRID006 column is not linked
//	GRID007 unknown host function
//	LKP001  unknown linked dataset  LKP002 linked row not found
//	LKP003  lookup failed
//	REQ001  invalid request
//	DB001   database unavailable    DB002  database timeout
//	DB003   dataset missing
//	RATE001 rate limited
//	ERR000  unexpected error
//
// Sentinel errors are matched first with errors.Is. Driver errors carry no
// sentinel and fall back to case-insensitive substring patterns.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/visualedit/internal/columns"
	"github.com/JonMunkholm/visualedit/internal/dataset"
	"github.com/JonMunkholm/visualedit/internal/grid"
	"github.com/JonMunkholm/visualedit/internal/logging"
)

var (
	errGridNotFound = errors.New("grid not found")
	errBadRequest   = errors.New("invalid request")
	errLookupFailed = errors.New("lookup failed")
	errRateLimited  = errors.New("rate limit exceeded")
)

// UserMessage is the client-facing description of an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

type errorMapping struct {
	target error
	status int
	msg    UserMessage
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{errGridNotFound, http.StatusNotFound, UserMessage{"Grid not found", "Check the grid id in the definitions file", "GRID001"}},
	{grid.ErrNotMounted, http.StatusConflict, UserMessage{"Grid is not mounted", "Reload the page", "GRID002"}},
	{grid.ErrUnknownRow, http.StatusNotFound, UserMessage{"Row not found", "Reload the grid data", "GRID003"}},
	{grid.ErrUnknownColumn, http.StatusNotFound, UserMessage{"Column not found", "Reload the grid columns", "GRID004"}},
	{grid.ErrUnknownEditor, http.StatusNotFound, UserMessage{"Editor is not open", "Open the editor again", "GRID005"}},
	{grid.ErrNotLinked, http.StatusBadRequest, UserMessage{"Column has no linked dataset", "Use a linked-record column", "GRID006"}},
	{columns.ErrUnknownFunction, http.StatusInternalServerError, UserMessage{"Column definition uses an unknown function", "Fix the grid definitions file", "GRID007"}},
	{dataset.ErrUnknownLinkedDataset, http.StatusNotFound, UserMessage{"Linked dataset is not configured", "Check linked_records in the definitions file", "LKP001"}},
	{dataset.ErrRowNotFound, http.StatusNotFound, UserMessage{"Linked record not found", "Pick another value", "LKP002"}},
	{errLookupFailed, http.StatusBadGateway, UserMessage{"Lookup service did not answer", "Please try again", "LKP003"}},
	{errBadRequest, http.StatusBadRequest, UserMessage{"Invalid request", "Check the request body and parameters", "REQ001"}},
}

type errorPattern struct {
	pattern string
	status  int
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"connection refused", http.StatusServiceUnavailable, UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB001"}},
	{"connection reset", http.StatusServiceUnavailable, UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB001"}},
	{"deadline exceeded", http.StatusGatewayTimeout, UserMessage{"Operation timed out", "Please try again", "DB002"}},
	{"timeout", http.StatusGatewayTimeout, UserMessage{"Operation timed out", "Please try again", "DB002"}},
	{"does not exist", http.StatusNotFound, UserMessage{"Dataset does not exist", "Check the dataset names in the definitions file", "DB003"}},
	{"rate limit", http.StatusTooManyRequests, UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError returns the user message and HTTP status for err.
func MapError(err error) (UserMessage, int) {
	if err == nil {
		return UserMessage{}, http.StatusOK
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.msg, m.status
		}
	}
	s := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(s, p.pattern) {
			return p.msg, p.status
		}
	}
	return defaultMessage, http.StatusInternalServerError
}

// respondError logs err with the request id and writes the mapped message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg, status := MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{"path", r.URL.Path, "method", r.Method, "status", status, "code", msg.Code, "error", err}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	writeErrorResponse(w, status, msg)
}

func writeErrorResponse(w http.ResponseWriter, status int, msg UserMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
