package client

import (
	"context"
	"net/http"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// NotifyClient delivers transfer notifications to a recipient's external
// logic. The returned string is an opaque settlement acknowledgment; any
// error means the transfer must not settle.
type NotifyClient interface {
	Notify(ctx context.Context, notifyURL string, notification protocol.TransferNotification) (string, error)
}

type HTTPNotifyClient struct {
	selfURL string
	hc      *http.Client
}

func NewHTTPNotifyClient(selfURL string, hc *http.Client) *HTTPNotifyClient {
	return &HTTPNotifyClient{selfURL: selfURL, hc: hc}
}

func (c *HTTPNotifyClient) Notify(ctx context.Context, notifyURL string, notification protocol.TransferNotification) (string, error) {
	var resp protocol.NotifyResponse
	if err := postJSON(ctx, c.hc, c.selfURL, notifyURL, notification, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}
