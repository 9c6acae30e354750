package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/wessells/seal-shop/api/web"
	"github.com/wessells/seal-shop/api/weberr"
	"github.com/wessells/seal-shop/core/claims"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// LoadAndSave adapts the scs session middleware to the web.Handler chain.
// It must run before any middleware that touches the session.
func LoadAndSave(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var err error

			sh := session.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				err = handler(r.Context(), w, r)
			}))

			sh.ServeHTTP(w, r)
			return err
		}
		return h
	}
	return m
}

// Identify stores the session identity as claims when a session is present
// and passes anonymous requests through untouched. For routes that answer
// differently per user but reject nobody.
func Identify(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if uid := session.GetString(ctx, userIDKey); uid != "" {
				c := claims.Claims{
					UserID: uid,
					Role:   session.GetString(ctx, roleKey),
				}
				ctx = claims.Set(ctx, c)
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

// Authenticate rejects requests with no logged-in session and stores the
// session identity as claims in the context.
func Authenticate(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			uid := session.GetString(ctx, userIDKey)
			if uid == "" {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}

			c := claims.Claims{
				UserID: uid,
				Role:   session.GetString(ctx, roleKey),
			}

			return handler(claims.Set(ctx, c), w, r)
		}
		return h
	}
	return m
}

// Admin builds on Authenticate and additionally requires the admin role.
func Admin(session *scs.SessionManager) web.Middleware {
	authen := Authenticate(session)
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if !claims.IsAdmin(ctx) {
				return weberr.NotAuthorized(errors.New("user is not an admin"))
			}
			return handler(ctx, w, r)
		}
		return authen(h)
	}
	return m
}

func login(ctx context.Context, session *scs.SessionManager, userID string, role string) error {
	if err := session.RenewToken(ctx); err != nil {
		return err
	}
	session.Put(ctx, userIDKey, userID)
	session.Put(ctx, roleKey, role)
	return nil
}
