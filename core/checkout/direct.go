package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/wessells/seal-shop/api/web"
	"github.com/wessells/seal-shop/api/weberr"
	"github.com/wessells/seal-shop/core/claims"
	"github.com/wessells/seal-shop/validate"
)

// HandleDirect is a processor-less checkout shortcut for local development.
// It is only routed when checkout.direct-enabled is set; the payment-backed
// flow is the production path.
func HandleDirect(db *sqlx.DB) web.Handler {
	type response struct {
		PurchasedIDs []string `json:"purchasedIds"`
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

		if err := fulfill(ctx, db, clm.UserID, in.Items); err != nil {
			return err
		}

		ids := make([]string, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.SealID)
		}
		return web.Respond(ctx, w, response{PurchasedIDs: ids}, http.StatusOK)
	}
}
