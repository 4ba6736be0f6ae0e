package issuer

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/flammafex/prestige/crypto/voprf"
	"github.com/flammafex/prestige/types"
	"go.vocdoni.io/dvote/log"
)

// Mock is an in-process issuer holding a real VOPRF secret key. Tokens it
// issues carry valid DLEQ proofs, so the admission path behaves
// identically against the mock and the production issuer.
type Mock struct {
	id       string
	key      *voprf.SecretKey
	epoch    uint64
	tokenTTL time.Duration
	clk      clock.Clock
}

// NewMock creates a mock issuer with a fresh key.
func NewMock(id string, tokenTTL time.Duration, clk clock.Clock) *Mock {
	return &Mock{
		id:       id,
		key:      voprf.NewSecretKey(),
		epoch:    1,
		tokenTTL: tokenTTL,
		clk:      clk,
	}
}

// PublicKey returns the issuer VOPRF public key.
func (m *Mock) PublicKey() types.HexBytes {
	return m.key.Public()
}

// Metadata implements Issuer.
func (m *Mock) Metadata(context.Context) (*Metadata, error) {
	return &Metadata{
		IssuerID:     m.id,
		VOPRFPubKey:  m.PublicKey(),
		CurrentEpoch: m.epoch,
	}, nil
}

// Issue evaluates the blinded element under the issuer key.
func (m *Mock) Issue(_ context.Context, blinded []byte) (*types.EligibilityToken, error) {
	tokenBytes, err := m.key.Evaluate(blinded, TokenContext)
	if err != nil {
		return nil, types.ErrInvalidProof.WithErr(err)
	}
	return &types.EligibilityToken{
		TokenBytes:      tokenBytes,
		IssuerPublicKey: m.PublicKey(),
		ExpiresAtMS:     m.clk.Now().Add(m.tokenTTL).UnixMilli(),
		KeyID:           m.id,
		Epoch:           m.epoch,
	}, nil
}

// Verifier returns an offline verifier pinned to the mock's key.
func (m *Mock) Verifier() *LocalVerifier {
	return NewLocalVerifier(m.PublicKey(), m.clk)
}

// NewRouter exposes the mock issuer over the §6 HTTP endpoints, backing
// integration tests of the HTTP client.
func (m *Mock) NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/.well-known/issuer", func(rw http.ResponseWriter, req *http.Request) {
		doc := map[string]any{
			"issuer_id": m.id,
			"voprf": map[string]any{
				"pubkey": b64.EncodeToString(m.PublicKey()),
			},
			"current_epoch": m.epoch,
		}
		writeJSON(rw, doc)
	})
	r.Post("/v1/oprf/issue", func(rw http.ResponseWriter, req *http.Request) {
		var in issueRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		blinded, err := b64.DecodeString(in.BlindedElementB64)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		token, err := m.Issue(req.Context(), blinded)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(rw, &issueResponse{
			Token: b64.EncodeToString(token.TokenBytes[:2*voprf.PointLen]),
			Proof: b64.EncodeToString(token.TokenBytes[2*voprf.PointLen:]),
			KID:   token.KeyID,
			Exp:   token.ExpiresAtMS / 1000,
			Epoch: token.Epoch,
		})
	})
	r.Post("/v1/verify", func(rw http.ResponseWriter, req *http.Request) {
		var in verifyRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		tokenBytes, err := b64.DecodeString(in.TokenB64)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		ok := voprf.Verify(tokenBytes, m.PublicKey(), TokenContext) == nil
		writeJSON(rw, &verifyTokenResponse{OK: ok, VerifiedAt: m.clk.Now().Unix()})
	})
	return r
}

func writeJSON(rw http.ResponseWriter, data any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(data); err != nil {
		log.Warnw("failed to write issuer response", "error", err)
	}
}
