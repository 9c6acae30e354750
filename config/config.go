package config

import "time"

// Config is the tree of runtime settings, parsed from the environment
// with the SEALS prefix.
type Config struct {
	Web      Web
	DB       DB
	Cors     Cors
	Auth     Auth
	Stripe   Stripe
	Paypal   Paypal
	Oauth    Oauth
	Checkout Checkout
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User           string        `conf:"default:postgres"`
	Password       string        `conf:"default:postgres,mask"`
	Host           string        `conf:"default:localhost:5432"`
	Name           string        `conf:"default:seals"`
	DisableTLS     bool          `conf:"default:true"`
	ConnectTimeout time.Duration `conf:"default:30s"`
}

type Cors struct {
	Origin string `conf:"default:"`
}

type Auth struct {
	SessionLifetime time.Duration `conf:"default:168h"`
}

type Stripe struct {
	APISecret     string        `conf:"mask"`
	WebhookSecret string        `conf:"mask"`
	URL           string        `conf:"default:"`
	Timeout       time.Duration `conf:"default:10s"`
}

type Paypal struct {
	Enabled  bool   `conf:"default:false"`
	ClientID string `conf:"default:"`
	Secret   string `conf:"default:,mask"`
	URL      string `conf:"default:https://api.sandbox.paypal.com"`
}

type OauthProvider struct {
	Client      string `conf:"default:"`
	Secret      string `conf:"default:,mask"`
	URL         string `conf:"default:https://accounts.google.com"`
	RedirectURL string `conf:"default:"`
}

type Oauth struct {
	Google           OauthProvider
	DiscoveryTimeout time.Duration `conf:"default:30s"`
	LoginRedirectURL string        `conf:"default:/"`
}

type Checkout struct {
	// DirectEnabled exposes the processor-less checkout endpoint.
	// Meant for local development only.
	DirectEnabled bool `conf:"default:false"`
}
