package cytomine

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	pingPath         = "/server/ping"
	adminOpenPath    = "/session/admin/open.json"
	adminClosePath   = "/session/admin/close.json"
	gtgTimeout       = 10 * time.Second
	defaultWait      = 120 * time.Second
	defaultWaitDelay = time.Second
)

// Connect waits until the server accepts connections, then fetches the
// current user. A zero timeout waits for two minutes.
func (c *Client) Connect(ctx context.Context, timeout time.Duration) error {
	if !c.WaitToAcceptConnection(ctx, timeout, defaultWaitDelay) {
		return fmt.Errorf("%w: %s", ErrUnreachable, c.baseURL(false))
	}
	return c.refreshCurrentUser(ctx)
}

// SetCredentials replaces the key pair and fetches the matching current user.
func (c *Client) SetCredentials(ctx context.Context, publicKey string, privateKey string) error {
	c.mu.Lock()
	c.keys = signer{publicKey: publicKey, privateKey: privateKey}
	c.currentUser = nil
	c.mu.Unlock()

	return c.refreshCurrentUser(ctx)
}

// CurrentUser returns the user the keys belong to, or nil before Connect.
func (c *Client) CurrentUser() *CurrentUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentUser
}

func (c *Client) refreshCurrentUser(ctx context.Context) error {
	u := &CurrentUser{}
	if err := c.FetchModel(ctx, u, nil); err != nil {
		return fmt.Errorf("failed to fetch current user: %w", err)
	}

	c.mu.Lock()
	c.currentUser = u
	c.mu.Unlock()

	c.logger.WithField("user", u.Username).WithField("userID", u.ID).Info("connected to cytomine")
	return nil
}

// Ping checks the server ping endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL(false)+pingPath, nil, nil, "")
	if err != nil {
		return err
	}

	resp, err := c.exchange(c.transfers, req, pingPath)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping %v returned a %v status code", req.URL.String(), resp.StatusCode)
	}
	return nil
}

// IsAlive reports whether the server answers its ping endpoint.
func (c *Client) IsAlive(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// GTG is the good-to-go check of the Cytomine core.
func (c *Client) GTG() error {
	ctx, cancel := context.WithTimeout(context.Background(), gtgTimeout)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		c.logger.WithError(err).WithField("healthEndpoint", c.baseURL(false)+pingPath).Error("GTG for cytomine core failed")
		return err
	}
	return nil
}

// WaitToAcceptConnection pings the server every delay until it answers or
// timeout expires.
func (c *Client) WaitToAcceptConnection(ctx context.Context, timeout time.Duration, delay time.Duration) bool {
	if timeout <= 0 {
		timeout = defaultWait
	}
	if delay <= 0 {
		delay = defaultWaitDelay
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		if c.IsAlive(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// OpenAdminSession elevates the current user to admin for this session.
func (c *Client) OpenAdminSession(ctx context.Context) error {
	return c.adminSession(ctx, adminOpenPath)
}

// CloseAdminSession drops the admin elevation.
func (c *Client) CloseAdminSession(ctx context.Context) error {
	return c.adminSession(ctx, adminClosePath)
}

func (c *Client) adminSession(ctx context.Context, path string) error {
	if err := c.request(ctx, http.MethodGet, path, false, nil, nil, nil); err != nil {
		return err
	}
	return c.refreshCurrentUser(ctx)
}

// VerifyCredentials checks that the server accepts the key pair.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	return c.FetchModel(ctx, &CurrentUser{}, nil)
}
