package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
	"github.com/wessells/seal-shop/api/web"
	"github.com/wessells/seal-shop/api/weberr"
	"github.com/wessells/seal-shop/config"
	"github.com/wessells/seal-shop/core/claims"
	"github.com/wessells/seal-shop/database"
	"github.com/wessells/seal-shop/validate"
)

const metaUserID = "user_id"

// HandleCreateIntent opens a checkout attempt: it validates ownership, asks
// Stripe for a payment intent tagged with the buyer, and parks the item
// snapshot in checkout_intents. Stripe metadata values are capped at 500
// characters, too small for the snapshot itself. Nothing is written to the
// ledger here.
func HandleCreateIntent(db *sqlx.DB, strp *stripecl.API) web.Handler {
	type response struct {
		IntentID     string `json:"intentId"`
		ClientSecret string `json:"clientSecret"`
	}

	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in IntentNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding checkout items: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		in.Items = dedupe(in.Items)

		if err := guard(ctx, db, clm.UserID, in.Items); err != nil {
			return err
		}

		snapshot, err := encodeItems(in.Items)
		if err != nil {
			return err
		}

		params := &stripe.PaymentIntentParams{
			Params:   stripe.Params{Context: ctx},
			Amount:   stripe.Int64(int64(total(in.Items))),
			Currency: stripe.String(string(stripe.CurrencyUSD)),

			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		params.AddMetadata(metaUserID, clm.UserID)

		pi, err := strp.PaymentIntents.New(params)
		if err != nil {
			return weberr.Unavailable(fmt.Errorf("creating payment intent: %w", err))
		}

		row := intentRow{
			ProviderID: pi.ID,
			UserID:     clm.UserID,
			Items:      snapshot,
			CreatedAt:  time.Now().UTC(),
		}
		if err := createIntent(ctx, db, row); err != nil {
			return fmt.Errorf("storing the snapshot bound to intent[%s]: %w", pi.ID, err)
		}

		resp := response{IntentID: pi.ID, ClientSecret: pi.ClientSecret}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

// HandleConfirm is the synchronous fulfillment path, called by the client
// once it has observed a settled charge. The client claim is never trusted:
// the intent status is re-read from Stripe. Racing the webhook is fine, the
// ledger insert absorbs the conflict either way.
func HandleConfirm(db *sqlx.DB, strp *stripecl.API) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		intentID := web.Param(r, "id")

		pi, err := strp.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{
			Params: stripe.Params{Context: ctx},
		})
		if err != nil {
			return weberr.Unavailable(fmt.Errorf("fetching payment intent[%s]: %w", intentID, err))
		}

		if pi.Status != stripe.PaymentIntentStatusSucceeded {
			err := fmt.Errorf("payment intent[%s] has status[%s]", intentID, pi.Status)
			return weberr.Conflict(err, "payment is not settled yet")
		}

		if pi.Metadata[metaUserID] != clm.UserID {
			return weberr.NotAuthorized(errors.New("payment intent belongs to another user"))
		}

		if err := settle(ctx, db, intentID, clm.UserID); err != nil {
			return fmt.Errorf("the payment settled but its fulfillment failed: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleWebhook is the asynchronous fulfillment path, driven by Stripe's own
// settlement event. Delivery is at-least-once; replays hit the same
// conflict-absorbing insert and change nothing.
func HandleWebhook(db *sqlx.DB, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		if event.Type != "payment_intent.succeeded" {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
		}

		userID := pi.Metadata[metaUserID]
		if userID == "" {
			// Not an intent of ours. Ack so Stripe stops redelivering.
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		if err := settle(ctx, db, pi.ID, userID); err != nil {
			return fmt.Errorf("the payment settled but its fulfillment failed: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// settle resolves the parked snapshot of a settled intent into ledger rows
// and discards it, in one transaction. A missing snapshot means the other
// fulfillment path already resolved this intent, which counts as success.
func settle(ctx context.Context, db *sqlx.DB, intentID string, userID string) error {
	row, err := fetchIntent(ctx, db, intentID)
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			return nil
		}
		return err
	}

	if row.UserID != userID {
		return fmt.Errorf("snapshot of intent[%s] belongs to another user", intentID)
	}

	items, err := decodeItems(row.Items)
	if err != nil {
		return fmt.Errorf("reading snapshot of intent[%s]: %w", intentID, err)
	}

	return database.Transaction(db, func(tx sqlx.ExtContext) error {
		if err := fulfill(ctx, tx, userID, items); err != nil {
			return err
		}
		return deleteIntent(ctx, tx, intentID)
	})
}
