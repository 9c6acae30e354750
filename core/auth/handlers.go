package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
	"github.com/wessells/seal-shop/api/web"
	"github.com/wessells/seal-shop/api/weberr"
	"github.com/wessells/seal-shop/core/claims"
	"github.com/wessells/seal-shop/core/user"
	"github.com/wessells/seal-shop/validate"
	"golang.org/x/crypto/bcrypt"
)

func HandleSignup(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var un user.UserNew
		if err := web.Decode(w, r, &un); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding signup: %w", err))
		}

		if err := validate.Check(un); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(un.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		now := time.Now().UTC()
		u := user.User{
			ID:           validate.GenerateID(),
			Name:         un.Name,
			Email:        un.Email,
			Role:         claims.RoleUser,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := user.Create(ctx, db, u); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		if err := login(ctx, session, u.ID, u.Role); err != nil {
			return fmt.Errorf("logging in after signup: %w", err)
		}

		return web.Respond(ctx, w, u, http.StatusCreated)
	}
}

func HandleLogin(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	type credentials struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var cr credentials
		if err := web.Decode(w, r, &cr); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding credentials: %w", err))
		}

		if err := validate.Check(cr); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		u, err := user.FetchByEmail(ctx, db, cr.Email)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return weberr.NotAuthorized(errors.New("unknown email or wrong password"))
			}
			return err
		}

		if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(cr.Password)); err != nil {
			return weberr.NotAuthorized(errors.New("unknown email or wrong password"))
		}

		if err := login(ctx, session, u.ID, u.Role); err != nil {
			return fmt.Errorf("logging in user[%s]: %w", u.ID, err)
		}

		return web.Respond(ctx, w, u, http.StatusOK)
	}
}

func HandleLogout(session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := session.Destroy(ctx); err != nil {
			return fmt.Errorf("destroying session: %w", err)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
