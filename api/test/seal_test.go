package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/wessells/seal-shop/core/seal"
)

func TestCatalog(t *testing.T) {
	te, err := NewTestEnv(t, "seal_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	w, err := te.Client().Get(te.URL + "/seals")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()
	if w.StatusCode != http.StatusOK {
		t.Fatalf("listing seals: status %d", w.StatusCode)
	}

	var seals []seal.Seal
	if err := json.NewDecoder(w.Body).Decode(&seals); err != nil {
		t.Fatal(err)
	}
	if len(seals) != 12 {
		t.Fatalf("catalog has %d seals, expected 12", len(seals))
	}

	w, err = te.Client().Get(te.URL + "/seals/1")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()
	if w.StatusCode != http.StatusOK {
		t.Fatalf("fetching seal 1: status %d", w.StatusCode)
	}

	var s seal.Seal
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Title != "Harbor Seal Classic" || s.Price != 999 {
		t.Fatalf("seal 1 is %q at %d", s.Title, s.Price)
	}

	w, err = te.Client().Get(te.URL + "/seals/no-such-seal")
	if err != nil {
		t.Fatal(err)
	}
	w.Body.Close()
	if w.StatusCode != http.StatusNotFound {
		t.Fatalf("fetching unknown seal: status %d, expected 404", w.StatusCode)
	}
}

func TestCatalogWriteRequiresAdmin(t *testing.T) {
	te, err := NewTestEnv(t, "sealadmin_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	if err := te.Login(te.UserEmail, te.UserPass); err != nil {
		t.Fatal(err)
	}

	body, err := json.Marshal(seal.SealNew{
		ID:          "13",
		Title:       "Moonlit Seal",
		Description: "Limited run night-themed seal.",
		ImageURL:    "https://picsum.photos/seed/moonlit-seal/800/600",
		Price:       2100,
	})
	if err != nil {
		t.Fatal(err)
	}

	w, err := te.Client().Post(te.URL+"/seals", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	w.Body.Close()
	if w.StatusCode != http.StatusUnauthorized {
		t.Fatalf("catalog write as plain user: status %d, expected 401", w.StatusCode)
	}
}
