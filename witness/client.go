package witness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/flammafex/prestige/types"
)

// DefaultTimeout bounds every witness exchange unless overridden.
const DefaultTimeout = 10 * time.Second

// HTTPClient talks to a remote witness service.
type HTTPClient struct {
	c    *http.Client
	host *url.URL
}

// NewHTTPClient connects to the witness service at host.
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

type attestRequest struct {
	Hash types.HexBytes `json:"hash"`
}

type verifyResponse struct {
	OK bool `json:"ok"`
}

// Attest submits the hash and returns the witness attestation.
func (w *HTTPClient) Attest(ctx context.Context, hash []byte) (*types.WitnessAttestation, error) {
	att := &types.WitnessAttestation{}
	if err := w.post(ctx, "/v1/attest", &attestRequest{Hash: hash}, att); err != nil {
		return nil, types.ErrWitnessUnavailable.WithErr(err)
	}
	return att, nil
}

// Verify submits the attestation for signature-set validation.
func (w *HTTPClient) Verify(ctx context.Context, att *types.WitnessAttestation) (bool, error) {
	resp := &verifyResponse{}
	if err := w.post(ctx, "/v1/verify", att, resp); err != nil {
		return false, types.ErrWitnessUnavailable.WithErr(err)
	}
	return resp.OK, nil
}

// Health checks the witness health endpoint.
func (w *HTTPClient) Health(ctx context.Context) error {
	u := w.host.JoinPath("/healthz")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := w.c.Do(req)
	if err != nil {
		return types.ErrWitnessUnavailable.WithErr(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return types.ErrWitnessUnavailable.Withf("status %d", resp.StatusCode)
	}
	return nil
}

func (w *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	u := w.host.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, respData)
	}
	return json.Unmarshal(respData, out)
}
