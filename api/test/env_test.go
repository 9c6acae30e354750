package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/wessells/seal-shop/api"
	"github.com/wessells/seal-shop/config"
	"github.com/wessells/seal-shop/core/auth"
	"github.com/wessells/seal-shop/database"
)

type TestEnv struct {
	Server        *httptest.Server
	URL           string
	DB            *sqlx.DB
	UserEmail     string
	UserPass      string
	WebhookSecret string
	Stripe        *mockStripe
	Paypal        *mockPaypal

	client *http.Client
}

// NewTestEnv spins up a full API instance on its own database inside the
// shared postgres container, with mock Stripe and PayPal backends, and one
// registered user.
func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	admin, err := database.Open(config.DB{
		User:       pgUser,
		Password:   pgPass,
		Host:       pgHost,
		Name:       "postgres",
		DisableTLS: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening admin db: %w", err)
	}
	defer admin.Close()

	if _, err := admin.Exec("CREATE DATABASE " + name); err != nil {
		return nil, fmt.Errorf("creating database %s: %w", name, err)
	}

	db, err := database.Open(config.DB{
		User:       pgUser,
		Password:   pgPass,
		Host:       pgHost,
		Name:       name,
		DisableTLS: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening test db: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating test db: %w", err)
	}

	ms := newMockStripe()
	stripeSrv := httptest.NewServer(ms.handle())
	t.Cleanup(stripeSrv.Close)

	mp := &mockPaypal{}
	paypalSrv := httptest.NewServer(mp.handle())
	t.Cleanup(paypalSrv.Close)

	pp, err := paypal.NewClient("test-client", "test-secret", paypalSrv.URL)
	if err != nil {
		return nil, fmt.Errorf("building paypal client: %w", err)
	}
	if _, err := pp.GetAccessToken(context.Background()); err != nil {
		return nil, fmt.Errorf("fetching mock paypal token: %w", err)
	}

	const whsec = "whsec_test_secret"

	strp := &stripecl.API{}
	strp.Init("sk_test_123", &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(stripeSrv.URL),
		}),
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mux := api.APIMux(api.APIConfig{
		Log:       logger,
		DB:        db,
		Session:   scs.New(),
		Paypal:    pp,
		Stripe:    strp,
		StripeCfg: config.Stripe{WebhookSecret: whsec},
		Providers: map[string]auth.Provider{},
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("building cookie jar: %w", err)
	}

	te := &TestEnv{
		Server:        srv,
		URL:           srv.URL,
		DB:            db,
		UserEmail:     name + "@test.com",
		UserPass:      "Sealpass123",
		WebhookSecret: whsec,
		Stripe:        ms,
		Paypal:        mp,
		client:        &http.Client{Jar: jar},
	}

	if err := te.Signup(te.UserEmail, te.UserPass); err != nil {
		return nil, fmt.Errorf("registering the default user: %w", err)
	}
	if err := te.Logout(); err != nil {
		return nil, fmt.Errorf("logging out the default user: %w", err)
	}

	return te, nil
}

func (te *TestEnv) Client() *http.Client {
	return te.client
}

func (te *TestEnv) Signup(email string, pass string) error {
	body := map[string]string{
		"name":            "Test User",
		"email":           email,
		"password":        pass,
		"passwordConfirm": pass,
	}
	return te.postJSON("/auth/signup", body, http.StatusCreated)
}

func (te *TestEnv) Login(email string, pass string) error {
	body := map[string]string{"email": email, "password": pass}
	return te.postJSON("/auth/login", body, http.StatusOK)
}

func (te *TestEnv) Logout() error {
	return te.postJSON("/auth/logout", nil, http.StatusNoContent)
}

// UserID looks a registered user up directly in the database.
func (te *TestEnv) UserID(t *testing.T, email string) string {
	t.Helper()

	var id string
	if err := te.DB.Get(&id, "SELECT user_id FROM users WHERE email = $1", email); err != nil {
		t.Fatalf("looking up user[%s]: %v", email, err)
	}
	return id
}

func (te *TestEnv) postJSON(path string, body any, wantStatus int) error {
	var rd io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	r, err := http.NewRequest(http.MethodPost, te.URL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	w, err := te.client.Do(r)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != wantStatus {
		b, _ := io.ReadAll(w.Body)
		return fmt.Errorf("POST %s: status %s: %s", path, w.Status, string(b))
	}
	return nil
}
