package seal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("seal not found")

func Create(ctx context.Context, db sqlx.ExtContext, s Seal) error {
	const q = `
	INSERT INTO seals (seal_id, title, description, image_url, model_url, price, created_at, updated_at)
	VALUES (:seal_id, :title, :description, :image_url, :model_url, :price, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, s); err != nil {
		return fmt.Errorf("inserting seal: %w", err)
	}
	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, s Seal) error {
	const q = `
	UPDATE seals SET
		title = :title,
		description = :description,
		image_url = :image_url,
		model_url = :model_url,
		price = :price,
		updated_at = :updated_at,
		version = version + 1
	WHERE seal_id = :seal_id AND version = :version`

	res, err := sqlx.NamedExecContext(ctx, db, q, s)
	if err != nil {
		return fmt.Errorf("updating seal[%s]: %w", s.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Seal, error) {
	const q = `SELECT * FROM seals WHERE seal_id = $1`

	var s Seal
	if err := sqlx.GetContext(ctx, db, &s, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Seal{}, ErrNotFound
		}
		return Seal{}, fmt.Errorf("fetching seal[%s]: %w", id, err)
	}
	return s, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]Seal, error) {
	const q = `SELECT * FROM seals ORDER BY seal_id`

	seals := []Seal{}
	if err := sqlx.SelectContext(ctx, db, &seals, q); err != nil {
		return nil, fmt.Errorf("fetching seals: %w", err)
	}
	return seals, nil
}
