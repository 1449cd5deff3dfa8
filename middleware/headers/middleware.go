package headers

import (
	"net/http"
)

// Middleware aplica os headers no momento em que o status é escrito, para
// sobrescrever valores vindos do handler (ex.: reverse proxy). Se o handler
// não escreve nada, aplica ao final.
func Middleware(in Injector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			sw := &writer{ResponseWriter: w, apply: func(h http.Header) { in.Apply(h, path) }}
			next.ServeHTTP(sw, r)
			if !sw.wroteHeader {
				sw.WriteHeader(http.StatusOK)
			}
		})
	}
}

type writer struct {
	http.ResponseWriter
	apply       func(http.Header)
	wroteHeader bool
}

func (w *writer) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	// 1xx não fecha o cabeçalho final
	if status >= 100 && status < 200 && status != http.StatusSwitchingProtocols {
		w.ResponseWriter.WriteHeader(status)
		return
	}
	w.wroteHeader = true
	w.apply(w.Header())
	w.ResponseWriter.WriteHeader(status)
}

func (w *writer) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *writer) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap permite que http.ResponseController alcance o writer original.
func (w *writer) Unwrap() http.ResponseWriter { return w.ResponseWriter }
