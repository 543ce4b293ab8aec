// Package problem renders RFC 7807 problem documents and plain JSON responses.
package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	TypeValidation  = "https://tourdesk.app/problems/validation-error"
	TypeNotFound    = "https://tourdesk.app/problems/not-found"
	TypeConflict    = "https://tourdesk.app/problems/conflict"
	TypeForbidden   = "https://tourdesk.app/problems/forbidden"
	TypeUnavailable = "https://tourdesk.app/problems/service-unavailable"
	TypeInternal    = "https://tourdesk.app/problems/internal-error"
)

const contentType = "application/problem+json"

// Details is the wire shape of a problem document.
type Details struct {
	Type   *string              `json:"type,omitempty"`
	Title  string               `json:"title"`
	Status int                  `json:"status"`
	Detail *string              `json:"detail,omitempty"`
	Errors *map[string][]string `json:"errors,omitempty"`
}

// New builds a problem document. Field errors are copied.
func New(title, detail, problemType string, status int, fieldErrors map[string][]string) Details {
	p := Details{
		Title:  title,
		Status: status,
	}

	if detail != "" {
		p.Detail = &detail
	}
	if problemType != "" {
		p.Type = &problemType
	}

	if len(fieldErrors) > 0 {
		copied := make(map[string][]string, len(fieldErrors))
		for field, messages := range fieldErrors {
			copied[field] = append([]string(nil), messages...)
		}
		p.Errors = &copied
	}

	return p
}

// Write sends p with its status code.
func Write(w http.ResponseWriter, p Details) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteJSON sends body as JSON with status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("request body is required")

// DecodeJSON reads a single JSON document from r into dst.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
