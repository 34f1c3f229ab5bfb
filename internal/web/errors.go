package web

// errors.go maps errors to user-facing messages with support codes.
//
//	FILE001  source missing, empty or unreadable      (csvreader.ErrFile)
//	FILE002  remote source unreachable                (*csvreader.StatusError)
//	FILE003  upload larger than UPLOAD_MAX_FILE_SIZE  (*http.MaxBytesError)
//	FILE004  upload form without a file
//	HDR001   header row or field name invalid         (csvreader.ErrInvalidHeaderOrField)
//	OPT001   reader option invalid                    (csvreader.ErrInvalidOption)
//	SRC001   no source given
//	SRC002   source not allowed by the server settings
//	REQ001   request timed out
//	RATE001  too many requests
//	AUTH001  API key missing or invalid
//	ERR000   anything else
//
// The technical error is logged with the request ID; only the user message
// reaches the client.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvreader/csvreader"
	"github.com/JonMunkholm/csvreader/internal/logging"
	"github.com/JonMunkholm/csvreader/internal/web/templates"
)

var (
	errNoFile         = errors.New("no file provided")
	errNoSource       = errors.New("no source provided")
	errLocalDisabled  = errors.New("local sources are disabled")
	errRemoteDisabled = errors.New("remote sources are disabled")
	errOutsideDir     = errors.New("source is outside the preview directory")
	errRateLimited    = errors.New("rate limit exceeded")
)

// UserMessage is what a client sees for an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

// ErrorResponse is the JSON body of an API error.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

type errorRule struct {
	match func(error) bool
	msg   UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func as[T error]() func(error) bool {
	return func(err error) bool {
		var t T
		return errors.As(err, &t)
	}
}

// errorRules are checked in order; the first match wins, so specific
// rules come before the broader sentinels they wrap.
var errorRules = []errorRule{
	{as[*csvreader.StatusError](), UserMessage{
		Message: "The remote file could not be reached",
		Action:  "Check the URL and that the server allows downloads",
		Code:    "FILE002",
	}},
	{is(csvreader.ErrFile), UserMessage{
		Message: "The file could not be read",
		Action:  "Check that the file exists and has a header and at least one data row",
		Code:    "FILE001",
	}},
	{as[*http.MaxBytesError](), UserMessage{
		Message: "The file is too large",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE003",
	}},
	{is(errNoFile), UserMessage{
		Message: "No file was selected",
		Action:  "Choose a CSV file to upload",
		Code:    "FILE004",
	}},
	{is(csvreader.ErrInvalidHeaderOrField), UserMessage{
		Message: "The header row is invalid",
		Action:  "Make sure every column has a title and required columns are present",
		Code:    "HDR001",
	}},
	{is(csvreader.ErrInvalidOption), UserMessage{
		Message: "The reader settings are invalid",
		Action:  "Check the delimiter, enclosure and header row parameters",
		Code:    "OPT001",
	}},
	{is(errNoSource), UserMessage{
		Message: "No source was given",
		Action:  "Enter a file path or URL",
		Code:    "SRC001",
	}},
	{func(err error) bool {
		return errors.Is(err, errLocalDisabled) || errors.Is(err, errRemoteDisabled) || errors.Is(err, errOutsideDir)
	}, UserMessage{
		Message: "This source cannot be previewed",
		Action:  "Upload the file instead",
		Code:    "SRC002",
	}},
	{is(context.DeadlineExceeded), UserMessage{
		Message: "The request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "REQ001",
	}},
	{is(errRateLimited), UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts err into a UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return defaultMessage
	}
	for _, rule := range errorRules {
		if rule.match(err) {
			return rule.msg
		}
	}
	return defaultMessage
}

// respondError logs err and writes the mapped message as JSON for API
// requests and as an HTML page otherwise.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := MapError(err)

	logger := logging.FromContext(r.Context())
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err,
	)

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		writeJSON(w, ErrorResponse{Error: msg.Message, Action: msg.Action, Code: msg.Code})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	page := templates.ErrorPage(r.URL.Query().Get("source"), msg.Message, msg.Action, msg.Code)
	if err := page.Render(r.Context(), w); err != nil {
		logger.Error("render error page", "error", err)
	}
}

// statusFor picks the HTTP status for a preview failure.
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errLocalDisabled), errors.Is(err, errRemoteDisabled), errors.Is(err, errOutsideDir):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, new(*csvreader.StatusError)):
		return http.StatusBadGateway
	case errors.Is(err, csvreader.ErrFile),
		errors.Is(err, csvreader.ErrInvalidHeaderOrField),
		errors.Is(err, csvreader.ErrInvalidOption),
		errors.Is(err, errNoFile),
		errors.Is(err, errNoSource):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// wantsJSON reports whether the client should get a JSON error.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
