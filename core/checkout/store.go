package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrIntentNotFound = errors.New("checkout intent not found")

// intentRow parks the item snapshot of an open checkout attempt, keyed by
// the provider's intent or order id. Neither gateway can carry the full
// snapshot itself (Stripe caps metadata values at 500 characters, PayPal
// orders carry no custom data). Rows are deleted once the attempt resolves.
type intentRow struct {
	ProviderID string    `db:"provider_id"`
	UserID     string    `db:"user_id"`
	Items      string    `db:"items"`
	CreatedAt  time.Time `db:"created_at"`
}

func createIntent(ctx context.Context, db sqlx.ExtContext, row intentRow) error {
	const q = `
	INSERT INTO checkout_intents (provider_id, user_id, items, created_at)
	VALUES (:provider_id, :user_id, :items, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, row); err != nil {
		return fmt.Errorf("inserting checkout intent: %w", err)
	}
	return nil
}

func fetchIntent(ctx context.Context, db sqlx.ExtContext, providerID string) (intentRow, error) {
	const q = `SELECT * FROM checkout_intents WHERE provider_id = $1`

	var row intentRow
	if err := sqlx.GetContext(ctx, db, &row, q, providerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return intentRow{}, ErrIntentNotFound
		}
		return intentRow{}, fmt.Errorf("fetching checkout intent[%s]: %w", providerID, err)
	}
	return row, nil
}

func deleteIntent(ctx context.Context, db sqlx.ExtContext, providerID string) error {
	const q = `DELETE FROM checkout_intents WHERE provider_id = $1`

	if _, err := db.ExecContext(ctx, q, providerID); err != nil {
		return fmt.Errorf("deleting checkout intent[%s]: %w", providerID, err)
	}
	return nil
}
