package inventory_test

import (
	"context"
	"errors"
	"testing"

	"orbit/internal/inventory"
	"orbit/internal/inventory/memory"
	"orbit/internal/inventory/storetest"
)

func TestFindItemByBarcode(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	item := storetest.Item("item-1", 1, inventory.SideLeft, 1.0, 0.5, 0.4, 0.3)
	if err := s.PutItem(ctx, item); err != nil {
		t.Fatalf("PutItem: %v", err)
	}
	bc := inventory.Barcode{
		ID:       "bc-1",
		Meta:     inventory.BarcodeMeta{Data: "00100897774117552794", BarcodeType: "GS1-128"},
		ItemUUID: "item-1",
	}
	if err := s.PutBarcode(ctx, bc); err != nil {
		t.Fatalf("PutBarcode: %v", err)
	}

	got, err := inventory.FindItemByBarcode(ctx, s, "00100897774117552794")
	if err != nil {
		t.Fatalf("FindItemByBarcode: %v", err)
	}
	if got.UUID != "item-1" {
		t.Errorf("resolved %q", got.UUID)
	}
	if got.PrimaryBarcode == nil || got.PrimaryBarcode.ID != "bc-1" {
		t.Errorf("primary barcode not attached: %+v", got.PrimaryBarcode)
	}
}

func TestFindItemByBarcodeMissing(t *testing.T) {
	s := memory.New()
	_, err := inventory.FindItemByBarcode(context.Background(), s, "unknown")
	if !errors.Is(err, inventory.ErrMissingEntity) {
		t.Errorf("expected ErrMissingEntity, got %v", err)
	}
}

func TestFindItemByBarcodeAmbiguous(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for _, id := range []string{"bc-1", "bc-2"} {
		bc := inventory.Barcode{
			ID:       id,
			Meta:     inventory.BarcodeMeta{Data: "dup", BarcodeType: "GS1-128"},
			ItemUUID: "item-" + id,
		}
		if err := s.PutBarcode(ctx, bc); err != nil {
			t.Fatalf("PutBarcode: %v", err)
		}
	}
	_, err := inventory.FindItemByBarcode(ctx, s, "dup")
	if !errors.Is(err, inventory.ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}
}

func TestFindItemByBarcodeDanglingItem(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	bc := inventory.Barcode{
		ID:       "bc-1",
		Meta:     inventory.BarcodeMeta{Data: "orphan", BarcodeType: "GS1-128"},
		ItemUUID: "gone",
	}
	if err := s.PutBarcode(ctx, bc); err != nil {
		t.Fatalf("PutBarcode: %v", err)
	}
	_, err := inventory.FindItemByBarcode(ctx, s, "orphan")
	if !errors.Is(err, inventory.ErrMissingEntity) {
		t.Errorf("expected ErrMissingEntity, got %v", err)
	}
}
