package purchase

import "time"

// Purchase records that a user owns a seal. Rows are immutable and unique
// per (user, seal): the primary key on those two columns is what turns the
// racing fulfillment paths into exactly-once semantics.
type Purchase struct {
	UserID      string    `json:"-" db:"user_id"`
	SealID      string    `json:"sealId" db:"seal_id"`
	SealTitle   string    `json:"sealTitle" db:"seal_title"`
	Price       int       `json:"price" db:"price"`
	PurchasedAt time.Time `json:"purchasedAt" db:"purchased_at"`
}

type CheckMultiple struct {
	SealIDs []string `json:"sealIds" validate:"required,min=1,max=100"`
}
