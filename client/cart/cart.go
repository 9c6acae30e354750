// Package cart is the buyer-side cart. It is purely local state persisted to
// a file between runs; the server is never consulted and never treats this
// state as ownership truth.
package cart

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StorageFile is the fixed name the cart is persisted under.
const StorageFile = "wessellseals_cart_v1.json"

type Item struct {
	SealID    string `json:"sealId"`
	Title     string `json:"title"`
	UnitPrice int    `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

// State is the serialized cart shape. The totals are derived from the items
// on every mutation and are never set independently.
type State struct {
	Items      []Item `json:"items"`
	TotalItems int    `json:"totalItems"`
	TotalPrice int    `json:"totalPrice"`
}

type Store struct {
	path  string
	state State
}

// NewStore loads the cart persisted under dir. A missing or unreadable file
// yields an empty cart rather than an error: the cart is reconstructible
// state, not a source of truth.
func NewStore(dir string) *Store {
	s := &Store{
		path:  filepath.Join(dir, StorageFile),
		state: State{Items: []Item{}},
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		return s
	}

	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return s
	}

	s.state.Items = sanitize(st.Items)
	s.recompute()
	return s
}

// sanitize re-establishes the row invariants on loaded state: one row per
// seal id, every quantity positive. A hand-edited file must not smuggle
// broken rows in.
func sanitize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if i, ok := index[it.SealID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.SealID] = len(out)
		out = append(out, it)
	}
	return out
}

// Add merges quantity into an existing row for the seal, or appends a new
// one. There is never more than one row per seal id.
func (s *Store) Add(item Item, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}

	for i := range s.state.Items {
		if s.state.Items[i].SealID == item.SealID {
			s.state.Items[i].Quantity += quantity
			return s.persist()
		}
	}

	item.Quantity = quantity
	s.state.Items = append(s.state.Items, item)
	return s.persist()
}

func (s *Store) Remove(sealID string) error {
	items := s.state.Items[:0]
	for _, it := range s.state.Items {
		if it.SealID != sealID {
			items = append(items, it)
		}
	}
	s.state.Items = items
	return s.persist()
}

// SetQuantity clamps the row to the given quantity. Anything below one
// removes the row, so a zero-quantity row can never exist.
func (s *Store) SetQuantity(sealID string, quantity int) error {
	if quantity <= 0 {
		return s.Remove(sealID)
	}

	for i := range s.state.Items {
		if s.state.Items[i].SealID == sealID {
			s.state.Items[i].Quantity = quantity
			return s.persist()
		}
	}
	return s.persist()
}

func (s *Store) Clear() error {
	s.state = State{Items: []Item{}}
	return s.persist()
}

// State returns a copy of the current cart.
func (s *Store) State() State {
	st := s.state
	st.Items = make([]Item, len(s.state.Items))
	copy(st.Items, s.state.Items)
	return st
}

// SealIDs lists the distinct seal ids in the cart, in row order.
func (s *Store) SealIDs() []string {
	ids := make([]string, 0, len(s.state.Items))
	for _, it := range s.state.Items {
		ids = append(ids, it.SealID)
	}
	return ids
}

func (s *Store) recompute() {
	var items, price int
	for _, it := range s.state.Items {
		items += it.Quantity
		price += it.UnitPrice * it.Quantity
	}
	s.state.TotalItems = items
	s.state.TotalPrice = price
}

// persist recomputes the totals and writes the full state out synchronously,
// so the on-disk cart never lags the in-memory one.
func (s *Store) persist() error {
	s.recompute()

	b, err := json.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("encoding cart state: %w", err)
	}

	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("persisting cart state: %w", err)
	}
	return nil
}
