// Package response writes JSON bodies and maps controller errors onto HTTP
// error responses.
package response

import (
	"net/http"

	"github.com/goccy/go-json"
)

// JSON writes v as a JSON response with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// OK writes v with status 200
func OK(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusOK, v)
}

// Created writes v with status 201
func Created(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusCreated, v)
}
