package issuer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/flammafex/prestige/crypto/voprf"
	"github.com/flammafex/prestige/types"
)

// DefaultTimeout bounds every issuer exchange unless overridden.
const DefaultTimeout = 10 * time.Second

// b64 is the token transport encoding at service boundaries: base64url
// without padding.
var b64 = base64.RawURLEncoding

// HTTPClient talks to a remote issuer over its published endpoints.
type HTTPClient struct {
	c    *http.Client
	host *url.URL

	// verifyHost is the verifier endpoint host; defaults to the issuer
	// host when unset.
	verifyHost *url.URL

	mu       sync.Mutex
	issuerID string
}

// NewHTTPClient connects to the issuer at host.
func NewHTTPClient(host string, timeout time.Duration) (*HTTPClient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		c:    &http.Client{Timeout: timeout},
		host: hostURL,
	}, nil
}

// SetVerifyHost points token verification at a separate verifier service.
func (i *HTTPClient) SetVerifyHost(host string) error {
	u, err := url.Parse(host)
	if err != nil {
		return err
	}
	i.verifyHost = u
	return nil
}

type issueRequest struct {
	BlindedElementB64 string          `json:"blinded_element_b64"`
	SybilProof        json.RawMessage `json:"sybil_proof"`
}

type issueResponse struct {
	Token string `json:"token"`
	Proof string `json:"proof"`
	KID   string `json:"kid"`
	Exp   int64  `json:"exp"`
	Epoch uint64 `json:"epoch"`
}

type verifyRequest struct {
	TokenB64 string `json:"token_b64"`
	IssuerID string `json:"issuer_id"`
	Exp      int64  `json:"exp,omitempty"`
	Epoch    uint64 `json:"epoch,omitempty"`
}

type verifyTokenResponse struct {
	OK         bool  `json:"ok"`
	VerifiedAt int64 `json:"verified_at,omitempty"`
}

// Metadata fetches the issuer's well-known document.
func (i *HTTPClient) Metadata(ctx context.Context) (*Metadata, error) {
	var raw struct {
		IssuerID string `json:"issuer_id"`
		VOPRF    struct {
			PubKey string `json:"pubkey"`
		} `json:"voprf"`
		CurrentEpoch uint64 `json:"current_epoch"`
	}
	if err := i.get(ctx, "/.well-known/issuer", &raw); err != nil {
		return nil, types.ErrIssuerUnavailable.WithErr(err)
	}
	pub, err := b64.DecodeString(raw.VOPRF.PubKey)
	if err != nil {
		return nil, types.ErrIssuerUnavailable.Withf("malformed issuer pubkey: %v", err)
	}
	i.mu.Lock()
	i.issuerID = raw.IssuerID
	i.mu.Unlock()
	return &Metadata{
		IssuerID:     raw.IssuerID,
		VOPRFPubKey:  pub,
		CurrentEpoch: raw.CurrentEpoch,
	}, nil
}

// Issue submits a blinded element for evaluation and assembles the full
// 130-byte token from the response's token and proof parts.
func (i *HTTPClient) Issue(ctx context.Context, blinded []byte) (*types.EligibilityToken, error) {
	req := &issueRequest{
		BlindedElementB64: b64.EncodeToString(blinded),
		SybilProof:        json.RawMessage(`{"type":"none"}`),
	}
	resp := &issueResponse{}
	if err := i.post(ctx, i.host, "/v1/oprf/issue", req, resp); err != nil {
		return nil, types.ErrIssuerUnavailable.WithErr(err)
	}
	tokenPart, err := b64.DecodeString(resp.Token)
	if err != nil {
		return nil, types.ErrInvalidProof.Withf("malformed token: %v", err)
	}
	proofPart, err := b64.DecodeString(resp.Proof)
	if err != nil {
		return nil, types.ErrInvalidProof.Withf("malformed proof: %v", err)
	}
	tokenBytes := append(tokenPart, proofPart...)
	if len(tokenBytes) != voprf.TokenLen {
		return nil, types.ErrInvalidProof.Withf("token length %d", len(tokenBytes))
	}
	meta, err := i.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return &types.EligibilityToken{
		TokenBytes:      tokenBytes,
		IssuerPublicKey: meta.VOPRFPubKey,
		ExpiresAtMS:     resp.Exp * 1000,
		KeyID:           resp.KID,
		Epoch:           resp.Epoch,
	}, nil
}

// VerifyToken checks a token through the issuer's verify endpoint, making
// HTTPClient usable as a Verifier where offline verification is not
// wanted.
func (i *HTTPClient) VerifyToken(ctx context.Context, token *types.EligibilityToken) error {
	host := i.verifyHost
	if host == nil {
		host = i.host
	}
	i.mu.Lock()
	issuerID := i.issuerID
	i.mu.Unlock()
	if issuerID == "" {
		meta, err := i.Metadata(ctx)
		if err != nil {
			return err
		}
		issuerID = meta.IssuerID
	}
	req := &verifyRequest{
		TokenB64: b64.EncodeToString(token.TokenBytes),
		IssuerID: issuerID,
		Exp:      token.ExpiresAtMS / 1000,
		Epoch:    token.Epoch,
	}
	resp := &verifyTokenResponse{}
	if err := i.post(ctx, host, "/v1/verify", req, resp); err != nil {
		return types.ErrIssuerUnavailable.WithErr(err)
	}
	if !resp.OK {
		return types.ErrInvalidProof.With("issuer rejected token")
	}
	return nil
}

func (i *HTTPClient) get(ctx context.Context, path string, out any) error {
	u := i.host.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	return i.do(req, out)
}

func (i *HTTPClient) post(ctx context.Context, host *url.URL, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	u := host.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return i.do(req, out)
}

func (i *HTTPClient) do(req *http.Request, out any) error {
	resp, err := i.c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}
