package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes bounds request bodies. Bulk participant imports are the largest payloads.
const maxBodyBytes = 4 << 20

// Validator is implemented by request DTOs that check their own fields.
// Validate returns one message per problem; nil or empty means valid.
type Validator interface {
	Validate() []string
}

// DecodeAndValidate decodes a single JSON object from the request body into dest, rejecting
// unknown fields, then runs dest's Validator if it has one. On failure it writes the error
// response (400, or 413 for an oversized body) and returns false; callers return immediately.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	return decodeBody(w, r, dest, false)
}

// DecodeOptional is DecodeAndValidate for endpoints whose body may be omitted. An empty body
// leaves dest untouched; it is still validated.
func DecodeOptional(w http.ResponseWriter, r *http.Request, dest any) bool {
	return decodeBody(w, r, dest, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dest)
	switch {
	case optional && errors.Is(err, io.EOF):
	case err != nil:
		writeDecodeError(w, err)
		return false
	default:
		if extra := dec.Decode(&struct{}{}); !errors.Is(extra, io.EOF) {
			WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "request body must contain a single JSON object")
			return false
		}
	}
	if v, ok := dest.(Validator); ok {
		if errs := v.Validate(); len(errs) > 0 {
			WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, strings.Join(errs, "; "))
			return false
		}
	}
	return true
}

// writeDecodeError turns a json decoding failure into a message a client can act on.
func writeDecodeError(w http.ResponseWriter, err error) {
	var (
		tooLarge  *http.MaxBytesError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	msg := err.Error()
	switch {
	case errors.As(err, &tooLarge):
		WriteJSONError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
			fmt.Sprintf("request body must not exceed %d bytes", tooLarge.Limit))
		return
	case errors.Is(err, io.EOF):
		msg = "request body is required"
	case errors.Is(err, io.ErrUnexpectedEOF):
		msg = "request body is truncated"
	case errors.As(err, &syntaxErr):
		msg = fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			msg = "request body must be a JSON object"
		} else {
			msg = fmt.Sprintf("field %q must be of type %s", typeErr.Field, typeErr.Type)
		}
	case strings.HasPrefix(msg, "json: unknown field "):
		msg = strings.TrimPrefix(msg, "json: ")
	}
	WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, msg)
}
