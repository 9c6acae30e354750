package purchase

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

func HandleListOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		purchases, err := FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, purchases, http.StatusOK)
	}
}

// HandleOwns answers ownership of a single seal. Anonymous callers own
// nothing rather than being rejected, so the storefront can probe freely.
func HandleOwns(db *sqlx.DB) web.Handler {
	type response struct {
		Owns bool `json:"owns"`
	}

	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return web.Respond(ctx, w, response{Owns: false}, http.StatusOK)
		}

		owned, err := Owned(ctx, db, clm.UserID, web.Param(r, "seal_id"))
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, response{Owns: owned}, http.StatusOK)
	}
}

// HandleCheckMultiple is the batch ownership query the client cart uses to
// prune already-owned seals after sign-in.
func HandleCheckMultiple(db *sqlx.DB) web.Handler {
	type response struct {
		OwnedSealIDs []string `json:"ownedSealIds"`
	}

	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var cm CheckMultiple
		if err := web.Decode(w, r, &cm); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding seal ids: %w", err))
		}

		if err := validate.Check(cm); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		owned, err := FilterOwned(ctx, db, clm.UserID, cm.SealIDs)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, response{OwnedSealIDs: owned}, http.StatusOK)
	}
}
