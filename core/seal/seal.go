package seal

import "time"

// Seal is a digital good. Each seal can be bought at most once per user.
type Seal struct {
	ID          string    `json:"id" db:"seal_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	ImageURL    string    `json:"imageUrl" db:"image_url"`
	ModelURL    string    `json:"modelUrl" db:"model_url"`
	Price       int       `json:"price" db:"price"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
	Version     int       `json:"-" db:"version"`
}

type SealNew struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	ImageURL    string `json:"imageUrl" validate:"required"`
	ModelURL    string `json:"modelUrl" validate:"omitempty,url"`
	Price       int    `json:"price" validate:"required,gte=0,lte=1000000"`
}

type SealUp struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	ImageURL    *string `json:"imageUrl"`
	ModelURL    *string `json:"modelUrl" validate:"omitempty,url"`
	Price       *int    `json:"price" validate:"omitempty,gte=0,lte=1000000"`
}
