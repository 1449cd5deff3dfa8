// Package httperr escreve as respostas de erro JSON do gateway.
package httperr

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Body é o formato de todas as respostas de erro: nada interno vaza aqui.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func Write(w http.ResponseWriter, status int, body Body) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteRetry inclui Retry-After em segundos (mínimo 1). O arredondamento
// fica com domain.Decision.RetryAfterSeconds.
func WriteRetry(w http.ResponseWriter, status int, secs int, body Body) {
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	Write(w, status, body)
}

var (
	RateLimited  = Body{Error: "Rate limit exceeded", Message: "Too many requests. Please try again later."}
	InvalidInput = Body{Error: "Invalid input detected"}
	InvalidPath  = Body{Error: "Invalid request path"}
	Unavailable  = Body{Error: "Service unavailable", Message: "Please try again later."}
	Internal     = Body{Error: "Internal server error"}
)
