package api

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/wessells/seal-shop/api/middleware"
	"github.com/wessells/seal-shop/api/web"
	"github.com/wessells/seal-shop/config"
	"github.com/wessells/seal-shop/core/auth"
	"github.com/wessells/seal-shop/core/checkout"
	"github.com/wessells/seal-shop/core/purchase"
	"github.com/wessells/seal-shop/core/seal"
	"github.com/wessells/seal-shop/core/user"
	"github.com/wessells/seal-shop/rate"
)

type APIConfig struct {
	CorsOrigin    string
	Log           logrus.FieldLogger
	DB            *sqlx.DB
	Session       *scs.SessionManager
	Paypal        *paypal.Client
	Stripe        *stripecl.API
	StripeCfg     config.Stripe
	Providers     map[string]auth.Provider
	LoginRedirect string
	Limiter       *rate.Limiter
	DirectEnabled bool
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, auth.LoadAndSave(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	identify := auth.Identify(cfg.Session)
	authen := auth.Authenticate(cfg.Session)
	admin := auth.Admin(cfg.Session)

	var limited web.Middleware
	if cfg.Limiter != nil {
		limited = middleware.RateLimit(cfg.Limiter)
	}

	a.Handle(http.MethodPost, "/auth/signup", auth.HandleSignup(cfg.DB, cfg.Session), limited)
	a.Handle(http.MethodPost, "/auth/login", auth.HandleLogin(cfg.DB, cfg.Session), limited)
	a.Handle(http.MethodPost, "/auth/logout", auth.HandleLogout(cfg.Session))
	a.Handle(http.MethodGet, "/auth/oauth-login/{provider}", auth.HandleOauthLogin(cfg.Session, cfg.Providers))
	a.Handle(http.MethodGet, "/auth/oauth-callback/{provider}", auth.HandleOauthCallback(cfg.DB, cfg.Session, cfg.Providers, cfg.LoginRedirect))

	a.Handle(http.MethodGet, "/users/current", user.HandleShowCurrent(cfg.DB), authen)

	a.Handle(http.MethodGet, "/seals", seal.HandleList(cfg.DB))
	a.Handle(http.MethodGet, "/seals/{id}", seal.HandleShow(cfg.DB))
	a.Handle(http.MethodPost, "/seals", seal.HandleCreate(cfg.DB), admin)
	a.Handle(http.MethodPut, "/seals/{id}", seal.HandleUpdate(cfg.DB), admin)

	a.Handle(http.MethodGet, "/purchases/owned", purchase.HandleListOwned(cfg.DB), authen)
	a.Handle(http.MethodGet, "/purchases/owns/{seal_id}", purchase.HandleOwns(cfg.DB), identify)
	a.Handle(http.MethodPost, "/purchases/check-multiple", purchase.HandleCheckMultiple(cfg.DB), authen)

	a.Handle(http.MethodPost, "/payments/intent", checkout.HandleCreateIntent(cfg.DB, cfg.Stripe), authen, limited)
	a.Handle(http.MethodPost, "/payments/intent/{id}/confirm", checkout.HandleConfirm(cfg.DB, cfg.Stripe), authen)
	a.Handle(http.MethodPost, "/payments/webhook", checkout.HandleWebhook(cfg.DB, cfg.StripeCfg))

	if cfg.Paypal != nil {
		a.Handle(http.MethodPost, "/checkout/paypal", checkout.HandlePaypalCheckout(cfg.DB, cfg.Paypal), authen, limited)
		a.Handle(http.MethodPost, "/checkout/paypal/{id}/capture", checkout.HandlePaypalCapture(cfg.DB, cfg.Paypal), authen)
	}

	if cfg.DirectEnabled {
		a.Handle(http.MethodPost, "/checkout/direct", checkout.HandleDirect(cfg.DB), authen)
	}

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
