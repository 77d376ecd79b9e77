package stockfeed

import (
	"encoding/json"
	"net/http"

	"github.com/example/pos-ledger/internal/readmodel"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter serves the projected views and the live feed.
func NewRouter(readStore *readmodel.Store, hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "subscribers": hub.ClientCount()})
	})
	r.Get("/stock/low", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, readStore.LowStock())
	})
	r.Get("/stock/{productID}", func(w http.ResponseWriter, r *http.Request) {
		sl, ok := readStore.Stock(chi.URLParam(r, "productID"))
		if !ok {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "no movements projected for product"})
			return
		}
		respondJSON(w, http.StatusOK, sl)
	})
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		o, ok := readStore.Order(chi.URLParam(r, "id"))
		if !ok {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "order not projected"})
			return
		}
		respondJSON(w, http.StatusOK, o)
	})
	r.Handle("/ws/stock", hub)

	return r
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
