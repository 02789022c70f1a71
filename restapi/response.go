/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/acronis/go-quotakit/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// marshalJSON doesn't escape HTML and doesn't add the trailing newline json.Encoder writes.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// RespondJSON sends response with 200 HTTP status code, does JSON marshaling of data and writes result in response's body.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON writes the status code and the JSON-encoded data.
// Content-Type is set to application/json unless the handler has already set it.
// Nil data means an empty body.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}
	logErr := func(msg string, err error) {
		if logger != nil {
			logger.Error(msg, log.Error(err))
		}
	}

	body, err := marshalJSON(respData)
	if err != nil {
		logErr("error while marshaling json for response body", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err = rw.Write(body); err != nil {
		logErr("error while writing response body", err)
	}
}

// ErrorResponseData is used for answer on requests with error
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

func (e *ErrorResponseData) Error() string {
	return fmt.Sprintf("HTTP error occurs: %v", e.Err)
}

// RespondError sets HTTP status code in response and writes error ({"error": {"domain": ..., "code": ...}})
// in body in JSON format. Also, it logs info (code and message) about error.
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	reportResponseError(err, logger, httpStatusCode >= http.StatusInternalServerError)
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{err}, logger)
}

// RespondInternalError sends response with 500 HTTP status code and internal error in body in JSON format.
func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

// RespondTooManyRequests sends response with the passed status code (usually 429)
// and sets Retry-After header to the number of seconds (rounded up) the client should wait.
func RespondTooManyRequests(rw http.ResponseWriter, statusCode int, domain string, retryAfter time.Duration, logger log.FieldLogger) {
	retryAfterSecs := int64((retryAfter + time.Second - 1) / time.Second)
	rw.Header().Set("Retry-After", strconv.FormatInt(retryAfterSecs, 10))
	RespondError(rw, statusCode, NewTooManyRequestsError(domain).AddContext("retryAfter", retryAfterSecs), logger)
}

// RespondMalformedRequestError creates Error from passed MalformedRequestError and then call RespondError.
func RespondMalformedRequestError(rw http.ResponseWriter, domain string, reqErr *MalformedRequestError, logger log.FieldLogger) {
	err := NewError(domain, httpCode2ErrorCode(reqErr.HTTPStatusCode), reqErr.Message)
	RespondError(rw, reqErr.HTTPStatusCode, err, logger)
}

// RespondMalformedRequestOrInternalError calls RespondMalformedRequestError (if passed error is *MalformedRequestError)
// or RespondInternalError (in other cases).
func RespondMalformedRequestOrInternalError(rw http.ResponseWriter, domain string, err error, logger log.FieldLogger) {
	var reqErr *MalformedRequestError
	if errors.As(err, &reqErr) {
		RespondMalformedRequestError(rw, domain, reqErr, logger)
		return
	}
	RespondInternalError(rw, domain, logger)
}

// Client errors (4xx) are logged at warn level, server errors (5xx) at error level.
func reportResponseError(err *Error, logger log.FieldLogger, serverErr bool) {
	countResponseError(err)
	if logger == nil {
		return
	}
	logFn := logger.Warn
	if serverErr {
		logFn = logger.Error
	}
	logFn("error in response", log.String("error_code", err.Code), log.String("error_message", err.Message))
}
