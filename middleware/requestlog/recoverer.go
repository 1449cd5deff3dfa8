package requestlog

import (
	"net/http"

	"admission-gateway/internal/httperr"
	"admission-gateway/internal/logging"
)

// Recoverer converte panics do handler em 500 JSON. Fica dentro do estágio
// de headers para que a resposta de erro também receba os headers de
// segurança; o recover do RequestLogger só pega o que escapar daqui.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &responseWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.FromContext(r.Context()).Error("panic recovered", "panic", rec)
				if tw.status == 0 {
					httperr.Write(tw, http.StatusInternalServerError, httperr.Internal)
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}
