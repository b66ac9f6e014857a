package statestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"arb-route-alerts/internal/signal"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, zerolog.Nop())

	state := signal.NewState()
	key := signal.Key("polygon", "LINK", "100")
	pair := state.Pair(key)
	pair.RecordSample(time.Unix(1000, 0), 1.25)
	pair.MarkSent(time.Unix(1000, 0), 1.25)
	state.Meta.MarkAnySent(time.Unix(1000, 0))

	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := loaded.Pair(key)
	if got.LastSentAt != 1000 || got.LastSentProfit != 1.25 {
		t.Fatalf("lastSent fields did not survive: %+v", got)
	}
	if len(got.Samples) != 1 || got.Samples[0].ProfitPct != 1.25 {
		t.Fatalf("samples did not survive: %+v", got.Samples)
	}
	if loaded.Meta.LastAnySentAt != 1000 {
		t.Fatalf("meta did not survive: %+v", loaded.Meta)
	}
}

func TestFileStoreMissingFileIsEmptyState(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"), zerolog.Nop())
	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if state == nil || len(state.Pairs) != 0 {
		t.Fatalf("expected empty state, got %+v", state)
	}
}

func TestFileStoreCorruptFileIsEmptyState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := NewFileStore(path, zerolog.Nop())
	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("corrupt file must not error: %v", err)
	}
	if state == nil || len(state.Pairs) != 0 {
		t.Fatalf("expected empty state, got %+v", state)
	}
}

func TestFileStorePredecessorLayout(t *testing.T) {
	// The predecessor bot wrote {pairs:{key:{lastSentAt,lastSentProfit}},
	// meta:{lastAnySentAt}}; that blob must still load.
	blob := `{"pairs":{"polygon:LINK/USDC:UNI->ODOS":{"lastSentAt":1700000000,"lastSentProfit":1.4}},"meta":{"lastAnySentAt":1700000000}}`
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(blob), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := NewFileStore(path, zerolog.Nop())
	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pair := state.Pair("polygon:LINK/USDC:UNI->ODOS")
	if pair.LastSentAt != 1700000000 || pair.LastSentProfit != 1.4 {
		t.Fatalf("predecessor fields not honoured: %+v", pair)
	}
}

func TestFileStoreNotConfigured(t *testing.T) {
	store := NewFileStore("", zerolog.Nop())
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatal("empty path must report not configured")
	}
	if err := store.Save(context.Background(), signal.NewState()); err == nil {
		t.Fatal("empty path must report not configured")
	}
}
