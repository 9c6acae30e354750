package test

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	mock "github.com/stripe/stripe-mock/param"
	"github.com/wessells/seal-shop/api/web"
	"github.com/wessells/seal-shop/random"
)

type stripeIntent struct {
	ID       string
	Amount   int64
	Status   string
	Metadata map[string]string
}

type mockStripe struct {
	mu      sync.Mutex
	intents map[string]*stripeIntent
}

func newMockStripe() *mockStripe {
	return &mockStripe{intents: make(map[string]*stripeIntent)}
}

// Settle flips an intent to succeeded, standing in for the buyer completing
// the payment on the provider side.
func (m *mockStripe) Settle(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pi, ok := m.intents[id]; ok {
		pi.Status = "succeeded"
	}
}

func (m *mockStripe) Intent(id string) (stripeIntent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pi, ok := m.intents[id]
	if !ok {
		return stripeIntent{}, false
	}
	return *pi, true
}

func (m *mockStripe) IntentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.intents)
}

func (m *mockStripe) render(pi *stripeIntent) map[string]any {
	return map[string]any{
		"id":            pi.ID,
		"client_secret": pi.ID + "_secret",
		"status":        pi.Status,
		"amount":        pi.Amount,
		"currency":      "usd",
		"metadata":      pi.Metadata,
	}
}

func (m *mockStripe) handle() http.Handler {
	create := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		rawAmount, ok := params["amount"].(string)
		if !ok {
			web.Respond(context.Background(), w, nil, 400)
			return
		}
		amount, err := strconv.ParseInt(rawAmount, 10, 64)
		if err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		md := map[string]string{}
		if raw, ok := params["metadata"].(map[string]any); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					md[k] = s
				}
			}
		}

		pi := &stripeIntent{
			ID:       "pi_" + random.String(16),
			Amount:   amount,
			Status:   "requires_payment_method",
			Metadata: md,
		}

		m.mu.Lock()
		m.intents[pi.ID] = pi
		m.mu.Unlock()

		web.Respond(context.Background(), w, m.render(pi), 200)
	})

	get := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		pi, ok := m.intents[web.Param(r, "id")]
		m.mu.Unlock()
		if !ok {
			web.Respond(context.Background(), w, nil, 404)
			return
		}
		web.Respond(context.Background(), w, m.render(pi), 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/payment_intents", create).Methods("POST")
	r.Handle("/v1/payment_intents/{id}", get).Methods("GET")
	return r
}

type mockPaypal struct {
	mu     sync.Mutex
	orders int
}

func (m *mockPaypal) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders
}

func (m *mockPaypal) handle() http.Handler {
	token := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		web.Respond(context.Background(), w, body, 200)
	})

	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.orders++
		n := m.orders
		m.mu.Unlock()

		ord := map[string]any{"id": fmt.Sprintf("paypal-%d", n), "status": "CREATED"}
		web.Respond(context.Background(), w, ord, 201)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ord := map[string]any{"id": web.Param(r, "id"), "status": "COMPLETED"}
		web.Respond(context.Background(), w, ord, 201)
	})

	r := mux.NewRouter()
	r.Handle("/v1/oauth2/token", token).Methods("POST")
	r.Handle("/v2/checkout/orders", checkout).Methods("POST")
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods("POST")
	return r
}
