package seal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/wessells/seal-shop/api/web"
	"github.com/wessells/seal-shop/api/weberr"
	"github.com/wessells/seal-shop/validate"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		seals, err := FetchAll(ctx, db)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, seals, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")

		s, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}
		return web.Respond(ctx, w, s, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var sn SealNew
		if err := web.Decode(w, r, &sn); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding seal: %w", err))
		}

		if err := validate.Check(sn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		s := Seal{
			ID:          sn.ID,
			Title:       sn.Title,
			Description: sn.Description,
			ImageURL:    sn.ImageURL,
			ModelURL:    sn.ModelURL,
			Price:       sn.Price,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := Create(ctx, db, s); err != nil {
			return fmt.Errorf("creating seal: %w", err)
		}
		return web.Respond(ctx, w, s, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")

		var su SealUp
		if err := web.Decode(w, r, &su); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding seal update: %w", err))
		}

		if err := validate.Check(su); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		s, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if su.Title != nil {
			s.Title = *su.Title
		}
		if su.Description != nil {
			s.Description = *su.Description
		}
		if su.ImageURL != nil {
			s.ImageURL = *su.ImageURL
		}
		if su.ModelURL != nil {
			s.ModelURL = *su.ModelURL
		}
		if su.Price != nil {
			s.Price = *su.Price
		}
		s.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, db, s); err != nil {
			return fmt.Errorf("updating seal[%s]: %w", id, err)
		}
		return web.Respond(ctx, w, s, http.StatusOK)
	}
}
