package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

type checkoutTest struct {
	*TestEnv
}

type checkoutItem struct {
	SealID string `json:"sealId"`
	Title  string `json:"title"`
	Price  int    `json:"price"`
}

type intentResponse struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

func (ct *checkoutTest) createIntent(t *testing.T, items []checkoutItem) (intentResponse, int) {
	t.Helper()

	b, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		t.Fatal(err)
	}

	r, err := http.NewRequest(http.MethodPost, ct.URL+"/payments/intent", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", "application/json")

	w, err := ct.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	var resp intentResponse
	if w.StatusCode == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("cannot decode intent response: %v", err)
		}
	}
	return resp, w.StatusCode
}

func (ct *checkoutTest) confirm(t *testing.T, intentID string) int {
	t.Helper()

	r, err := http.NewRequest(http.MethodPost, ct.URL+"/payments/intent/"+intentID+"/confirm", nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := ct.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()
	io.Copy(io.Discard, w.Body)
	return w.StatusCode
}

// deliverWebhook plays the payment processor: it signs and posts a
// settlement event for the given intent, exactly as stored in the mock.
func (ct *checkoutTest) deliverWebhook(t *testing.T, intentID string, secret string) int {
	t.Helper()

	pi, ok := ct.Stripe.Intent(intentID)
	if !ok {
		t.Fatalf("intent[%s] unknown to the mock", intentID)
	}

	obj := map[string]any{
		"id":       pi.ID,
		"status":   pi.Status,
		"metadata": pi.Metadata,
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		t.Fatal(err)
	}

	evt := stripe.Event{
		APIVersion: "2022-11-15",
		Type:       "payment_intent.succeeded",
		Data: &stripe.EventData{
			Raw: json.RawMessage(raw),
		},
	}

	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    secret,
		Timestamp: time.Now(),
	})

	r, err := http.NewRequest(http.MethodPost, ct.URL+"/payments/webhook", bytes.NewBuffer(b))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Stripe-Signature", signed.Header)

	w, err := ct.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()
	io.Copy(io.Discard, w.Body)
	return w.StatusCode
}

func (ct *checkoutTest) purchaseCount(t *testing.T, userID string, sealID string) int {
	t.Helper()

	var n int
	err := ct.DB.Get(&n, "SELECT count(*) FROM purchases WHERE user_id = $1 AND seal_id = $2", userID, sealID)
	if err != nil {
		t.Fatalf("counting purchases: %v", err)
	}
	return n
}

func TestCheckoutFulfillment(t *testing.T) {
	env, err := NewTestEnv(t, "checkout_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}
	ct := &checkoutTest{env}

	if err := ct.Login(ct.UserEmail, ct.UserPass); err != nil {
		t.Fatal(err)
	}
	userID := ct.UserID(t, ct.UserEmail)

	items := []checkoutItem{
		{SealID: "1", Title: "Harbor Seal Classic", Price: 999},
		{SealID: "2", Title: "Playful Pup Seal", Price: 1250},
	}

	resp, status := ct.createIntent(t, items)
	if status != http.StatusOK {
		t.Fatalf("creating intent: status %d", status)
	}
	if resp.ClientSecret == "" {
		t.Fatal("intent carries no client secret")
	}

	pi, ok := ct.Stripe.Intent(resp.IntentID)
	if !ok {
		t.Fatal("intent never reached the payment provider")
	}
	if pi.Amount != 2249 {
		t.Fatalf("intent amount is %d, expected 2249", pi.Amount)
	}

	// Confirming before settlement must not touch the ledger.
	if status := ct.confirm(t, resp.IntentID); status != http.StatusConflict {
		t.Fatalf("confirm before settlement: status %d, expected 409", status)
	}
	if n := ct.purchaseCount(t, userID, "1"); n != 0 {
		t.Fatalf("ledger written before settlement: %d rows", n)
	}

	ct.Stripe.Settle(resp.IntentID)

	if status := ct.confirm(t, resp.IntentID); status != http.StatusNoContent {
		t.Fatalf("confirm after settlement: status %d", status)
	}
	for _, it := range items {
		if n := ct.purchaseCount(t, userID, it.SealID); n != 1 {
			t.Fatalf("seal[%s]: %d rows, expected 1", it.SealID, n)
		}
	}

	// A second confirm and a webhook replay are both no-ops.
	if status := ct.confirm(t, resp.IntentID); status != http.StatusNoContent {
		t.Fatalf("repeated confirm: status %d", status)
	}
	if status := ct.deliverWebhook(t, resp.IntentID, ct.WebhookSecret); status != http.StatusNoContent {
		t.Fatalf("webhook replay: status %d", status)
	}
	for _, it := range items {
		if n := ct.purchaseCount(t, userID, it.SealID); n != 1 {
			t.Fatalf("seal[%s] after replays: %d rows, expected 1", it.SealID, n)
		}
	}

	// Re-purchasing an owned seal is blocked before any intent is created.
	before := ct.Stripe.IntentCount()
	if _, status := ct.createIntent(t, items[:1]); status != http.StatusBadRequest {
		t.Fatalf("intent for owned seal: status %d, expected 400", status)
	}
	if after := ct.Stripe.IntentCount(); after != before {
		t.Fatalf("an intent was created for an owned seal")
	}
}

func TestLargeCartCheckout(t *testing.T) {
	env, err := NewTestEnv(t, "largecart_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}
	ct := &checkoutTest{env}

	if err := ct.Login(ct.UserEmail, ct.UserPass); err != nil {
		t.Fatal(err)
	}
	userID := ct.UserID(t, ct.UserEmail)

	// Ten items produce a snapshot far beyond what a provider metadata
	// value can hold; the snapshot must stay on our side.
	prices := []int{999, 1250, 1400, 1150, 1325, 850, 1000, 1500, 1800, 1650}
	items := make([]checkoutItem, 0, len(prices))
	for i, p := range prices {
		items = append(items, checkoutItem{
			SealID: strconv.Itoa(i + 1),
			Title:  fmt.Sprintf("Catalog Seal %d", i+1),
			Price:  p,
		})
	}

	resp, status := ct.createIntent(t, items)
	if status != http.StatusOK {
		t.Fatalf("creating intent for %d items: status %d", len(items), status)
	}

	pi, ok := ct.Stripe.Intent(resp.IntentID)
	if !ok {
		t.Fatal("intent never reached the payment provider")
	}
	if pi.Amount != 12924 {
		t.Fatalf("intent amount is %d, expected 12924", pi.Amount)
	}
	if len(pi.Metadata) != 1 || pi.Metadata["user_id"] != userID {
		t.Fatalf("provider metadata should carry only the buyer id, got %v", pi.Metadata)
	}

	ct.Stripe.Settle(resp.IntentID)
	if status := ct.confirm(t, resp.IntentID); status != http.StatusNoContent {
		t.Fatalf("confirm after settlement: status %d", status)
	}

	for _, it := range items {
		if n := ct.purchaseCount(t, userID, it.SealID); n != 1 {
			t.Fatalf("seal[%s]: %d rows, expected 1", it.SealID, n)
		}
	}
}

func TestDuplicateItemsChargedOnce(t *testing.T) {
	env, err := NewTestEnv(t, "dupes_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}
	ct := &checkoutTest{env}

	if err := ct.Login(ct.UserEmail, ct.UserPass); err != nil {
		t.Fatal(err)
	}
	userID := ct.UserID(t, ct.UserEmail)

	item := checkoutItem{SealID: "6", Title: "Tiny Seal Buddy", Price: 850}
	resp, status := ct.createIntent(t, []checkoutItem{item, item, item})
	if status != http.StatusOK {
		t.Fatalf("creating intent: status %d", status)
	}

	pi, ok := ct.Stripe.Intent(resp.IntentID)
	if !ok {
		t.Fatal("intent never reached the payment provider")
	}
	if pi.Amount != 850 {
		t.Fatalf("repeated entries charged more than once: amount %d", pi.Amount)
	}

	ct.Stripe.Settle(resp.IntentID)
	if status := ct.confirm(t, resp.IntentID); status != http.StatusNoContent {
		t.Fatalf("confirm after settlement: status %d", status)
	}
	if n := ct.purchaseCount(t, userID, "6"); n != 1 {
		t.Fatalf("found %d rows, expected 1", n)
	}
}

func TestDualPathRace(t *testing.T) {
	env, err := NewTestEnv(t, "race_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}
	ct := &checkoutTest{env}

	if err := ct.Login(ct.UserEmail, ct.UserPass); err != nil {
		t.Fatal(err)
	}
	userID := ct.UserID(t, ct.UserEmail)

	items := []checkoutItem{{SealID: "3", Title: "Regal Grey Seal", Price: 1400}}

	resp, status := ct.createIntent(t, items)
	if status != http.StatusOK {
		t.Fatalf("creating intent: status %d", status)
	}
	ct.Stripe.Settle(resp.IntentID)

	// Both fulfillment paths fire at once, repeatedly. Whatever the
	// interleaving, every delivery must report success and the ledger must
	// end with exactly one row.
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if status := ct.confirm(t, resp.IntentID); status != http.StatusNoContent {
				errs <- fmt.Errorf("confirm: status %d", status)
			}
		}()
		go func() {
			defer wg.Done()
			if status := ct.deliverWebhook(t, resp.IntentID, ct.WebhookSecret); status != http.StatusNoContent {
				errs <- fmt.Errorf("webhook: status %d", status)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if n := ct.purchaseCount(t, userID, "3"); n != 1 {
		t.Fatalf("found %d rows for the raced seal, expected exactly 1", n)
	}
}

func TestWebhookSignature(t *testing.T) {
	env, err := NewTestEnv(t, "webhook_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}
	ct := &checkoutTest{env}

	if err := ct.Login(ct.UserEmail, ct.UserPass); err != nil {
		t.Fatal(err)
	}
	userID := ct.UserID(t, ct.UserEmail)

	items := []checkoutItem{{SealID: "4", Title: "Swimming Seal", Price: 1150}}
	resp, status := ct.createIntent(t, items)
	if status != http.StatusOK {
		t.Fatalf("creating intent: status %d", status)
	}
	ct.Stripe.Settle(resp.IntentID)

	// Unsigned events are dropped.
	r, err := http.NewRequest(http.MethodPost, ct.URL+"/payments/webhook", bytes.NewReader([]byte("{}")))
	if err != nil {
		t.Fatal(err)
	}
	w, err := ct.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	w.Body.Close()
	if w.StatusCode != http.StatusBadRequest {
		t.Fatalf("unsigned webhook: status %d, expected 400", w.StatusCode)
	}

	// Events signed with the wrong secret are dropped with no side effect.
	if status := ct.deliverWebhook(t, resp.IntentID, "whsec_wrong_secret"); status != http.StatusBadRequest {
		t.Fatalf("badly signed webhook: status %d, expected 400", status)
	}
	if n := ct.purchaseCount(t, userID, "4"); n != 0 {
		t.Fatalf("badly signed webhook wrote %d ledger rows", n)
	}

	// A correctly signed event settles as usual.
	if status := ct.deliverWebhook(t, resp.IntentID, ct.WebhookSecret); status != http.StatusNoContent {
		t.Fatalf("signed webhook: status %d", status)
	}
	if n := ct.purchaseCount(t, userID, "4"); n != 1 {
		t.Fatalf("found %d rows after webhook, expected 1", n)
	}
}

func TestPaypalCheckout(t *testing.T) {
	env, err := NewTestEnv(t, "paypal_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}
	ct := &checkoutTest{env}

	if err := ct.Login(ct.UserEmail, ct.UserPass); err != nil {
		t.Fatal(err)
	}
	userID := ct.UserID(t, ct.UserEmail)

	items := []checkoutItem{{SealID: "5", Title: "Seal with Fish", Price: 1325}}
	b, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		t.Fatal(err)
	}

	r, err := http.NewRequest(http.MethodPost, ct.URL+"/checkout/paypal", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", "application/json")

	w, err := ct.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()
	if w.StatusCode != http.StatusOK {
		t.Fatalf("creating paypal order: status %s", w.Status)
	}

	var ord struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&ord); err != nil {
		t.Fatalf("cannot decode paypal order: %v", err)
	}

	capture := func() int {
		r, err := http.NewRequest(http.MethodPost, ct.URL+"/checkout/paypal/"+ord.ID+"/capture", nil)
		if err != nil {
			t.Fatal(err)
		}
		w, err := ct.Client().Do(r)
		if err != nil {
			t.Fatal(err)
		}
		defer w.Body.Close()
		io.Copy(io.Discard, w.Body)
		return w.StatusCode
	}

	if status := capture(); status != http.StatusNoContent {
		t.Fatalf("capturing paypal order: status %d", status)
	}
	if n := ct.purchaseCount(t, userID, "5"); n != 1 {
		t.Fatalf("found %d rows after capture, expected 1", n)
	}

	// The resolved intent is discarded; a second capture finds nothing.
	if status := capture(); status != http.StatusNotFound {
		t.Fatalf("repeated capture: status %d, expected 404", status)
	}
	if n := ct.purchaseCount(t, userID, "5"); n != 1 {
		t.Fatalf("found %d rows after repeated capture, expected 1", n)
	}
}
