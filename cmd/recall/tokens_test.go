package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPriceBook_EmptyPathYieldsEmptyBook(t *testing.T) {
	book, err := loadPriceBook("")
	if err != nil {
		t.Fatalf("loadPriceBook: %v", err)
	}
	if _, ok := book.Price("anything"); ok {
		t.Error("expected an empty book to have no prices")
	}
}

func TestLoadPriceBook_ReadsJSONTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.json")
	if err := os.WriteFile(path, []byte(`{"claude":{"InputPerMTok":3,"OutputPerMTok":15}}`), 0o644); err != nil {
		t.Fatalf("write price book: %v", err)
	}

	book, err := loadPriceBook(path)
	if err != nil {
		t.Fatalf("loadPriceBook: %v", err)
	}
	price, ok := book.Price("claude")
	if !ok {
		t.Fatal("expected claude to be priced")
	}
	if price.InputPerMTok != 3 || price.OutputPerMTok != 15 {
		t.Errorf("unexpected price: %+v", price)
	}
}
