// Package client provides typed remote clients for the token system's
// node roles: shard, manager, notification target, and the underlying
// asset service. Each contract operation is one method, so call sites
// are statically checked instead of dispatching on method names.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

func postJSON(ctx context.Context, hc *http.Client, selfURL, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if selfURL != "" {
		req.Header.Set(protocol.NodeHeader, selfURL)
	}
	return doJSON(hc, req, out)
}

func getJSON(ctx context.Context, hc *http.Client, selfURL, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if selfURL != "" {
		req.Header.Set(protocol.NodeHeader, selfURL)
	}
	return doJSON(hc, req, out)
}

func deleteJSON(ctx context.Context, hc *http.Client, selfURL, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if selfURL != "" {
		req.Header.Set(protocol.NodeHeader, selfURL)
	}
	return doJSON(hc, req, out)
}

// doJSON executes the request and decodes either the success payload or
// the node's error envelope. Envelope errors come back as the same typed
// *protocol.TxError the remote node produced; anything else is wrapped
// as a remote-call rejection with the transport status.
func doJSON(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return protocol.ErrRemoteCall(0, err.Error())
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		var envelope protocol.ErrorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(raw, &envelope) == nil && envelope.Code != "" {
			return &protocol.TxError{Code: envelope.Code, Message: envelope.Message}
		}
		return protocol.ErrRemoteCall(resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return protocol.ErrRemoteCall(resp.StatusCode, "decode response: "+err.Error())
	}
	return nil
}
