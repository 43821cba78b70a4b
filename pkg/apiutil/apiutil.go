// Package apiutil holds the JSON and CORS helpers shared by the API
// handlers.
package apiutil

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every API error response.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response. detail may be empty.
func WriteError(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorBody{Error: msg, Detail: detail})
}

// SetCORS adds the cross-origin header set for the stream endpoint. The
// expose list covers everything an audio element needs for seeking.
func SetCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges, Content-Type, ETag, Last-Modified")
	h.Set("Access-Control-Max-Age", "86400")
}
