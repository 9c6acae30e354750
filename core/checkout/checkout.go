package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/wessells/seal-shop/api/weberr"
	"github.com/wessells/seal-shop/core/purchase"
)

// Item is one line of the checkout snapshot. The price is whatever the
// catalog said at intent-creation time, in cents; fulfillment never looks the
// seal up again, so a later catalog change cannot affect an in-flight
// checkout.
type Item struct {
	SealID string `json:"sealId" validate:"required"`
	Title  string `json:"title" validate:"required"`
	Price  int    `json:"price" validate:"gte=0"`
}

type IntentNew struct {
	Items []Item `json:"items" validate:"required,min=1,max=50,dive"`
}

// dedupe collapses repeated seal ids, keeping the first entry. Ownership is
// per seal, so a duplicated entry must not be charged twice.
func dedupe(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if seen[it.SealID] {
			continue
		}
		seen[it.SealID] = true
		out = append(out, it)
	}
	return out
}

func total(items []Item) int {
	var tot int
	for _, it := range items {
		tot += it.Price
	}
	return tot
}

func encodeItems(items []Item) (string, error) {
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding item snapshot: %w", err)
	}
	return string(b), nil
}

func decodeItems(raw string) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decoding item snapshot: %w", err)
	}
	return items, nil
}

// guard rejects the checkout when the user already owns any requested seal,
// before anything is created with the payment provider.
func guard(ctx context.Context, db *sqlx.DB, userID string, items []Item) error {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.SealID)
	}

	owned, err := purchase.FilterOwned(ctx, db, userID, ids)
	if err != nil {
		return fmt.Errorf("checking ownership before checkout: %w", err)
	}

	if len(owned) > 0 {
		err := errors.New("user already owns one or more of these seals")
		return weberr.NewError(err, "you already own one or more of these seals", http.StatusBadRequest)
	}
	return nil
}

// fulfill turns a settled snapshot into ledger rows. Both fulfillment paths
// funnel through here; conflicts are absorbed by the insert, so the second
// writer is a harmless no-op and the caller always sees success.
func fulfill(ctx context.Context, db sqlx.ExtContext, userID string, items []Item) error {
	now := time.Now().UTC()
	purchases := make([]purchase.Purchase, 0, len(items))
	for _, it := range items {
		purchases = append(purchases, purchase.Purchase{
			UserID:      userID,
			SealID:      it.SealID,
			SealTitle:   it.Title,
			Price:       it.Price,
			PurchasedAt: now,
		})
	}

	if _, err := purchase.Create(ctx, db, purchases); err != nil {
		return fmt.Errorf("recording purchases for user[%s]: %w", userID, err)
	}
	return nil
}
