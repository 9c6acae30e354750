package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/ardanlabs/conf/v3"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/wessells/seal-shop/api"
	"github.com/wessells/seal-shop/config"
	"github.com/wessells/seal-shop/core/auth"
	"github.com/wessells/seal-shop/database"
	"github.com/wessells/seal-shop/rate"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	const prefix = "SEALS"
	var cfg config.Config
	if _, err := conf.Parse(prefix, &cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), cfg.DB.ConnectTimeout)
	defer dbCancel()
	if err := database.StatusCheck(dbCtx, db); err != nil {
		return fmt.Errorf("db never became reachable: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate db schema: %w", err)
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.Auth.SessionLifetime

	var pp *paypal.Client
	if cfg.Paypal.Enabled {
		pp, err = paypal.NewClient(
			cfg.Paypal.ClientID,
			cfg.Paypal.Secret,
			cfg.Paypal.URL,
		)
		if err != nil {
			return fmt.Errorf("failed to build the paypal client: %w", err)
		}

		if _, err = pp.GetAccessToken(context.TODO()); err != nil {
			return fmt.Errorf("failed to get the first paypal access token: %w", err)
		}
	}

	strp := newStripe(cfg.Stripe)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Oauth.DiscoveryTimeout)
	defer cancel()
	google := cfg.Oauth.Google
	oauthProvs := map[string]auth.Provider{}
	if google.Client != "" {
		oauthProvs, err = auth.MakeProviders(ctx, []auth.ProviderConfig{
			{Name: "google", Client: google.Client, Secret: google.Secret, URL: google.URL, RedirectURL: google.RedirectURL},
		})
		if err != nil {
			return fmt.Errorf("failed to discover oauth providers: %w", err)
		}
	}

	limiter := rate.NewLimiter(10, 15, rate.Every(time.Second))

	mux := api.APIMux(api.APIConfig{
		CorsOrigin:    cfg.Cors.Origin,
		Log:           logger,
		DB:            db,
		Session:       sessionManager,
		Paypal:        pp,
		Stripe:        strp,
		StripeCfg:     cfg.Stripe,
		Providers:     oauthProvs,
		LoginRedirect: cfg.Oauth.LoginRedirectURL,
		Limiter:       limiter,
		DirectEnabled: cfg.Checkout.DirectEnabled,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}

// newStripe builds the stripe client over a bounded HTTP client, so a stuck
// provider call fails as retryable instead of hanging a checkout. A custom
// URL points the client at a mock backend in tests.
func newStripe(cfg config.Stripe) *stripecl.API {
	bcfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.URL != "" {
		bcfg.URL = stripe.String(cfg.URL)
	}

	strp := &stripecl.API{}
	strp.Init(cfg.APISecret, &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, bcfg),
	})
	return strp
}
