package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/wessells/seal-shop/api/web"
	"github.com/wessells/seal-shop/api/weberr"
	"github.com/wessells/seal-shop/core/claims"
	"github.com/wessells/seal-shop/database"
	"github.com/wessells/seal-shop/validate"
)

func centsToDecimal(cents int) string {
	return strconv.Itoa(cents/100) + "." + fmt.Sprintf("%02d", cents%100)
}

// HandlePaypalCheckout creates a PayPal order for the snapshot, after the
// same ownership guard as the Stripe path. PayPal orders cannot carry our
// metadata, so the snapshot is parked in checkout_intents until capture.
func HandlePaypalCheckout(db *sqlx.DB, pp *paypal.Client) web.Handler {
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

		items := make([]paypal.Item, 0, len(in.Items))
		for _, it := range in.Items {
			items = append(items, paypal.Item{
				Quantity: "1",
				Name:     it.Title,
				SKU:      it.SealID,

				UnitAmount: &paypal.Money{
					Currency: "USD",
					Value:    centsToDecimal(it.Price),
				},
			})
		}

		tot := centsToDecimal(total(in.Items))
		units := []paypal.PurchaseUnitRequest{{
			Items: items,

			Amount: &paypal.PurchaseUnitAmount{
				Currency: "USD",
				Value:    tot,

				Breakdown: &paypal.PurchaseUnitAmountBreakdown{ItemTotal: &paypal.Money{
					Currency: "USD",
					Value:    tot,
				}},
			},
		}}

		ord, err := pp.CreateOrder(ctx, "CAPTURE", units, nil, &paypal.ApplicationContext{})
		if err != nil {
			return weberr.Unavailable(fmt.Errorf("creating paypal order: %w", err))
		}

		snapshot, err := encodeItems(in.Items)
		if err != nil {
			return err
		}

		row := intentRow{
			ProviderID: ord.ID,
			UserID:     clm.UserID,
			Items:      snapshot,
			CreatedAt:  time.Now().UTC(),
		}
		if err := createIntent(ctx, db, row); err != nil {
			return fmt.Errorf("storing the snapshot bound to paypal order[%s]: %w", ord.ID, err)
		}

		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

// HandlePaypalCapture settles a PayPal order and performs the same
// idempotent ledger insert as the Stripe paths.
func HandlePaypalCapture(db *sqlx.DB, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		providerID := web.Param(r, "id")

		row, err := fetchIntent(ctx, db, providerID)
		if err != nil {
			if errors.Is(err, ErrIntentNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if row.UserID != clm.UserID {
			return weberr.NotAuthorized(errors.New("paypal order belongs to another user"))
		}

		resp, err := pp.CaptureOrder(ctx, providerID, paypal.CaptureOrderRequest{})
		if err != nil {
			return weberr.Unavailable(fmt.Errorf("capturing paypal order[%s]: %w", providerID, err))
		}

		if resp.Status != "COMPLETED" {
			err := fmt.Errorf("captured order[%s] with status[%s] different from 'COMPLETED'", providerID, resp.Status)
			return weberr.Conflict(err, "payment is not settled yet")
		}

		items, err := decodeItems(row.Items)
		if err != nil {
			return fmt.Errorf("reading snapshot of paypal order[%s]: %w", providerID, err)
		}

		// Ledger rows and intent cleanup land together or not at all, so a
		// crash between them cannot leave a resolved intent behind.
		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			if err := fulfill(ctx, tx, row.UserID, items); err != nil {
				return err
			}
			return deleteIntent(ctx, tx, providerID)
		})
		if err != nil {
			return fmt.Errorf("the payment settled but its fulfillment failed: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
