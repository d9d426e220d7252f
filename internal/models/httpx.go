package models

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Problem представляет ответ об ошибке в стиле RFC 7807.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Extra    any    `json:"extra,omitempty"`
}

func WriteProblem(w http.ResponseWriter, status int, title, detail string, extra any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:  title,
		Status: status,
		Detail: detail,
		Extra:  extra,
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// порядок важен: ErrMalformedListing оборачивает ErrTelemetryUnavailable
var problemTable = []struct {
	err    error
	status int
	title  string
}{
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrInvalidInput, http.StatusBadRequest, "Invalid Input"},
	{ErrPoolExhausted, http.StatusConflict, "Address Pool Exhausted"},
	{ErrConstraintViolation, http.StatusConflict, "Constraint Violation"},
	{ErrServerNotConfigured, http.StatusServiceUnavailable, "Server Not Configured"},
	{ErrMalformedListing, http.StatusBadGateway, "Malformed Interface Listing"},
	{ErrTelemetryUnavailable, http.StatusServiceUnavailable, "Telemetry Unavailable"},
	{ErrKeyGeneration, http.StatusInternalServerError, "Key Generation Failed"},
	{ErrInterfaceCommand, http.StatusBadGateway, "Interface Command Failed"},
}

// StatusOf классифицирует ошибку доменной таксономии.
func StatusOf(err error) (int, string) {
	for _, row := range problemTable {
		if errors.Is(err, row.err) {
			return row.status, row.title
		}
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

// WriteError пишет problem+json по классу ошибки.
func WriteError(w http.ResponseWriter, err error, extra any) {
	status, title := StatusOf(err)
	WriteProblem(w, status, title, err.Error(), extra)
}
