package witness

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/flammafex/prestige/types"
	"go.vocdoni.io/dvote/log"
)

// NewRouter exposes a Witness implementation over the HTTP surface the
// HTTPClient expects. It backs integration tests and local deployments
// where the witness runs in-process.
func NewRouter(w Witness) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/healthz", func(rw http.ResponseWriter, req *http.Request) {
		if err := w.Health(req.Context()); err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/attest", func(rw http.ResponseWriter, req *http.Request) {
		var in attestRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		att, err := w.Attest(req.Context(), in.Hash)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, att)
	})
	r.Post("/v1/verify", func(rw http.ResponseWriter, req *http.Request) {
		att := &types.WitnessAttestation{}
		if err := json.NewDecoder(req.Body).Decode(att); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		ok, err := w.Verify(req.Context(), att)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, &verifyResponse{OK: ok})
	})
	return r
}

func writeJSON(rw http.ResponseWriter, data any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(data); err != nil {
		log.Warnw("failed to write witness response", "error", err)
	}
}
