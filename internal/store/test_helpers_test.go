package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/ir"
	"github.com/roach88/eventidx/internal/mutation"
)

// createTestStore creates a new file-backed SQLite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func id(short string) ir.IRString {
	return ir.IRString(chain.MustParseAddress(short).String())
}

// agentInsert is the insert produced for an AgentRegistered event.
func agentInsert(agentID string) mutation.Insert {
	return mutation.Insert{Target: mutation.TableAgent, Row: ir.IRObject{
		"agent_id":            id(agentID),
		"agent_address":       id("0x2"),
		"agent_owner_address": id("0x3"),
		"stake_amount":        ir.IRInt(1000),
		"rating":              ir.IRInt(500),
		"buys":                ir.IRInt(0),
		"active":              ir.IRBool(true),
		"registered_at":       ir.IRInt(1700000000000),
	}}
}

func buyOfferInsert(buyOfferID string, price int64) mutation.Insert {
	return mutation.Insert{Target: mutation.TableBuyOffer, Row: ir.IRObject{
		"buy_offer_id":             id(buyOfferID),
		"owner":                    id("0x20"),
		"product":                  ir.IRString("lamp"),
		"price":                    ir.IRInt(price),
		"offer_type_is_time_based": ir.IRBool(false),
		"deadline":                 ir.IRInt(0),
		"created_at":               ir.IRInt(1700000000100),
	}}
}

func sellOfferInsert(buyOfferID, sellOfferID string, price int64) mutation.Insert {
	return mutation.Insert{Target: mutation.TableSellOffer, Row: ir.IRObject{
		"buy_offer_id":  id(buyOfferID),
		"sell_offer_id": id(sellOfferID),
		"agent_id":      id("0x1"),
		"agent_address": id("0x2"),
		"store_link":    ir.IRString("https://shop.example/lamp"),
		"price":         ir.IRInt(price),
		"is_update":     ir.IRBool(false),
	}}
}

func byBuyOffer(buyOfferID string) ir.IRObject {
	return ir.IRObject{"buy_offer_id": id(buyOfferID)}
}

func countRows(t *testing.T, s *Store, table mutation.Table) int64 {
	t.Helper()
	counts, err := s.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	return counts[table]
}
