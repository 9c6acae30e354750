package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/wessells/seal-shop/api/web"
	"github.com/wessells/seal-shop/api/weberr"
	"github.com/wessells/seal-shop/rate"
)

// RateLimit throttles per client address.
func RateLimit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if !lim.Check(host) {
				err := errors.New("rate limit exceeded")
				return weberr.NewError(err, "too many requests, slow down", http.StatusTooManyRequests)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
