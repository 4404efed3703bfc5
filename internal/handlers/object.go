package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ObjectReader reads stored objects by path.
type ObjectReader interface {
	Object(path string) ([]byte, bool)
}

// ServeObject serves objects of the in-memory store under /objects/*, so
// presigned URLs resolve during local development.
func ServeObject(objects ObjectReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		data, ok := objects.Object(path)
		if !ok {
			respondError(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
