package purchase

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Create records ownership of every given seal in one statement. Pairs that
// already exist are skipped by the conflict clause, so losing a race against
// the other fulfillment path is indistinguishable from having run second:
// both outcomes leave exactly one row per pair. The number of rows actually
// written is returned.
//
// A separate existence check followed by an insert would reopen the race
// window, hence the single constrained statement.
func Create(ctx context.Context, db sqlx.ExtContext, purchases []Purchase) (int64, error) {
	if len(purchases) == 0 {
		return 0, nil
	}

	const q = `
	INSERT INTO purchases (user_id, seal_id, seal_title, price, purchased_at)
	VALUES (:user_id, :seal_id, :seal_title, :price, :purchased_at)
	ON CONFLICT (user_id, seal_id) DO NOTHING`

	res, err := sqlx.NamedExecContext(ctx, db, q, purchases)
	if err != nil {
		return 0, fmt.Errorf("inserting purchases: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting inserted purchases: %w", err)
	}
	return n, nil
}

func FetchByUser(ctx context.Context, db sqlx.ExtContext, userID string) ([]Purchase, error) {
	const q = `
	SELECT * FROM purchases
	WHERE user_id = $1
	ORDER BY purchased_at DESC, seal_id`

	purchases := []Purchase{}
	if err := sqlx.SelectContext(ctx, db, &purchases, q, userID); err != nil {
		return nil, fmt.Errorf("fetching purchases of user[%s]: %w", userID, err)
	}
	return purchases, nil
}

// Owned reports whether the user already owns the seal. It reads the ledger
// directly: a cached answer could let a double purchase through.
func Owned(ctx context.Context, db sqlx.ExtContext, userID string, sealID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM purchases WHERE user_id = $1 AND seal_id = $2)`

	var owned bool
	if err := sqlx.GetContext(ctx, db, &owned, q, userID, sealID); err != nil {
		return false, fmt.Errorf("checking ownership of seal[%s]: %w", sealID, err)
	}
	return owned, nil
}

// FilterOwned returns the subset of sealIDs the user already owns. It must
// agree with calling Owned per id.
func FilterOwned(ctx context.Context, db sqlx.ExtContext, userID string, sealIDs []string) ([]string, error) {
	if len(sealIDs) == 0 {
		return []string{}, nil
	}

	const q = `
	SELECT seal_id FROM purchases
	WHERE user_id = $1 AND seal_id = ANY ($2)
	ORDER BY seal_id`

	owned := []string{}
	if err := sqlx.SelectContext(ctx, db, &owned, q, userID, pq.Array(sealIDs)); err != nil {
		return nil, fmt.Errorf("filtering owned seals: %w", err)
	}
	return owned, nil
}
