// Package client is a Go client of the shop API. It owns the session cookie
// jar and the sign-in reconciliation that prunes already-owned seals from the
// local cart.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/wessells/seal-shop/client/cart"
	"github.com/wessells/seal-shop/core/checkout"
	"github.com/wessells/seal-shop/core/purchase"
	"github.com/wessells/seal-shop/core/seal"
)

type Client struct {
	base string
	http *http.Client
}

func New(base string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("building cookie jar: %w", err)
	}

	return &Client{
		base: base,
		http: &http.Client{Jar: jar},
	}, nil
}

type Intent struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

// Login opens a session and reconciles the cart against server ownership:
// any seal the user already owns is dropped from the local cart.
func (c *Client) Login(ctx context.Context, email string, password string, store *cart.Store) ([]string, error) {
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, nil); err != nil {
		return nil, err
	}

	return c.SyncOwned(ctx, store)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// SyncOwned removes every seal the server says the user owns from the cart
// and returns the removed ids. Reconciliation is one-way: the server is the
// ownership truth, the cart is not.
func (c *Client) SyncOwned(ctx context.Context, store *cart.Store) ([]string, error) {
	ids := store.SealIDs()
	if len(ids) == 0 {
		return nil, nil
	}

	owned, err := c.CheckMultiple(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, id := range owned {
		if err := store.Remove(id); err != nil {
			return nil, fmt.Errorf("removing owned seal[%s] from cart: %w", id, err)
		}
	}
	return owned, nil
}

func (c *Client) CheckMultiple(ctx context.Context, sealIDs []string) ([]string, error) {
	body := purchase.CheckMultiple{SealIDs: sealIDs}

	var resp struct {
		OwnedSealIDs []string `json:"ownedSealIds"`
	}
	if err := c.do(ctx, http.MethodPost, "/purchases/check-multiple", body, &resp); err != nil {
		return nil, err
	}
	return resp.OwnedSealIDs, nil
}

func (c *Client) FetchOwned(ctx context.Context) ([]purchase.Purchase, error) {
	var purchases []purchase.Purchase
	if err := c.do(ctx, http.MethodGet, "/purchases/owned", nil, &purchases); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (c *Client) Seals(ctx context.Context) ([]seal.Seal, error) {
	var seals []seal.Seal
	if err := c.do(ctx, http.MethodGet, "/seals", nil, &seals); err != nil {
		return nil, err
	}
	return seals, nil
}

// CreateIntent opens a checkout attempt for the current cart. Each distinct
// seal goes in once: quantity is a cart-side notion, ownership is per seal.
func (c *Client) CreateIntent(ctx context.Context, store *cart.Store) (Intent, error) {
	st := store.State()

	items := make([]checkout.Item, 0, len(st.Items))
	for _, it := range st.Items {
		items = append(items, checkout.Item{
			SealID: it.SealID,
			Title:  it.Title,
			Price:  it.UnitPrice,
		})
	}

	var intent Intent
	err := c.do(ctx, http.MethodPost, "/payments/intent", checkout.IntentNew{Items: items}, &intent)
	if err != nil {
		return Intent{}, err
	}
	return intent, nil
}

// Confirm reports a settled charge back to the server. A no-op success means
// the webhook path got there first; the cart is cleared either way.
func (c *Client) Confirm(ctx context.Context, intentID string, store *cart.Store) error {
	path := "/payments/intent/" + intentID + "/confirm"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return err
	}
	return store.Clear()
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var er struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return fmt.Errorf("%s %s: status %s: %s", method, path, resp.Status, er.Error)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response of %s %s: %w", method, path, err)
		}
	}
	return nil
}
