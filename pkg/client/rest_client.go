// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.
//
// go-mpc is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jeremyhahn/go-mpc/internal/rest"
	"github.com/jeremyhahn/go-mpc/pkg/adapters/auth"
	"github.com/jeremyhahn/go-mpc/pkg/correlation"
	"github.com/jeremyhahn/go-mpc/pkg/keymanager"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// do performs one request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set(auth.APIKeyHeader, c.config.APIKey)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	if id := correlation.GetCorrelationID(ctx); id != "" {
		req.Header.Set(correlation.CorrelationIDHeader, id)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope rest.ErrorBody
		if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Error.Kind != "" {
			return &APIError{Status: resp.StatusCode, Kind: envelope.Error.Kind, Message: envelope.Error.Message}
		}
		return &APIError{Status: resp.StatusCode, Kind: types.KindOther.String(), Message: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %w", types.ErrSerialization, err)
	}
	return nil
}

func sessionPath(id string, rest ...string) string {
	p := "/api/v1/sessions/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Health checks the health of the server.
func (c *Client) Health(ctx context.Context) (*rest.HealthResponse, error) {
	var resp rest.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateKey creates a session key.
func (c *Client) GenerateKey(ctx context.Context, req *types.KeyGenRequest) (*types.KeyGenResponse, error) {
	var resp types.KeyGenResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/keygen", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sign signs a message hash with the named participants.
func (c *Client) Sign(ctx context.Context, req *types.SignRequest) (*types.SignResponse, error) {
	var resp types.SignResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sign", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify checks a signature against a session key.
func (c *Client) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	var resp types.VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Attest asks the server vault for an attestation over challenge.
func (c *Client) Attest(ctx context.Context, challenge []byte) (*rest.AttestResponse, error) {
	var resp rest.AttestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/attest", rest.AttestRequest{Challenge: challenge}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sessions lists the server's sessions.
func (c *Client) Sessions(ctx context.Context) ([]keymanager.SessionInfo, error) {
	var resp rest.SessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Session describes one session.
func (c *Client) Session(ctx context.Context, id string) (*keymanager.SessionInfo, error) {
	var resp keymanager.SessionInfo
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublicKey returns the session public key and address.
func (c *Client) PublicKey(ctx context.Context, id string) (*rest.PublicKeyResponse, error) {
	var resp rest.PublicKeyResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "public-key"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the session status.
func (c *Client) Status(ctx context.Context, id string) (types.Status, error) {
	var resp rest.StatusResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "status"), nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// KeyShare returns the sealed share at index.
func (c *Client) KeyShare(ctx context.Context, id string, index int) (*types.KeyShare, error) {
	var resp types.KeyShare
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "shares", strconv.Itoa(index)), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rotate replaces the session shares.
func (c *Client) Rotate(ctx context.Context, id string) (*rest.RotateResponse, error) {
	var resp rest.RotateResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "rotate"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Backup returns one sealed backup per share.
func (c *Client) Backup(ctx context.Context, id string) ([][]byte, error) {
	var resp rest.BackupResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "backup"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Backups, nil
}

// Restore replaces the session shares with backups.
func (c *Client) Restore(ctx context.Context, id string, backups [][]byte) (*keymanager.SessionInfo, error) {
	var resp keymanager.SessionInfo
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "restore"), rest.RestoreRequest{Backups: backups}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Combine submits participant shares for a signature over message.
func (c *Client) Combine(ctx context.Context, id string, message []byte, shares []types.SignatureShare) (*types.Signature, error) {
	var resp rest.CombineResponse
	req := rest.CombineRequest{Message: message, Shares: shares}
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "combine"), req, &resp); err != nil {
		return nil, err
	}
	return &resp.Signature, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id), nil, nil)
}
