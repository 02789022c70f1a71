/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError is an error that occurs in case of incorrect request.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for case when request body is too large.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// DecodeRequestJSON reads request body (not more than maxSizeBytes, 0 means no limit) and decodes it as JSON.
// Unknown fields are not allowed. Empty body is allowed when allowEmpty is true, dst is left untouched in this case.
// All validation errors are returned as *MalformedRequestError.
func DecodeRequestJSON(rw http.ResponseWriter, r *http.Request, dst interface{}, maxSizeBytes uint64, allowEmpty bool) error {
	if reqContentType := r.Header.Get("Content-Type"); reqContentType != "" {
		contentType, _, err := mime.ParseMediaType(reqContentType)
		if err != nil {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("Failed to parse Content-Type header for request: %s.", err),
			}
		}
		if contentType != ContentTypeAppJSON {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("Content-Type %q is not supported.", contentType),
			}
		}
	}

	body := r.Body
	if maxSizeBytes > 0 {
		body = http.MaxBytesReader(rw, r.Body, int64(maxSizeBytes))
	}
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return convertDecodeError(err)
	}

	// Decoder is designed to decode streams of JSON objects, but we need to prevent this behavior.
	if decoder.More() {
		return &MalformedRequestError{
			http.StatusBadRequest,
			"Request body must only contain a single JSON object.",
		}
	}
	return nil
}

func convertDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, io.EOF):
		return &MalformedRequestError{http.StatusBadRequest, "Request body must not be empty."}

	case errors.Is(err, io.ErrUnexpectedEOF):
		return &MalformedRequestError{http.StatusBadRequest, "Request body contains badly-formed JSON."}

	case errors.As(err, &syntaxErr):
		return &MalformedRequestError{
			http.StatusBadRequest,
			fmt.Sprintf("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset),
		}

	case errors.As(err, &unmarshalTypeErr):
		return &MalformedRequestError{
			http.StatusBadRequest,
			fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d).",
				unmarshalTypeErr.Field, unmarshalTypeErr.Offset),
		}

	case errors.As(err, &maxBytesErr):
		return NewTooLargeMalformedRequestError(uint64(maxBytesErr.Limit))

	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return &MalformedRequestError{
			http.StatusBadRequest,
			fmt.Sprintf("Request body contains %s.", strings.TrimPrefix(err.Error(), "json: ")),
		}
	}
	return err
}
