package mutation

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/events"
	"github.com/roach88/eventidx/internal/ir"
)

// ErrNarrowing reports an unsigned amount that does not fit a signed 64-bit column.
var ErrNarrowing = errors.New("value exceeds signed 64-bit range")

// Defaults for a newly registered agent.
const (
	InitialAgentRating = 500
	InitialAgentBuys   = 0
)

// EventRef locates an event on chain.
type EventRef struct {
	Checkpoint uint64
	TxDigest   string
	EventIndex int // position within the transaction's events

	// CheckpointTimestampMs is the checkpoint time, already narrowed.
	// No current mapping reads it; event payloads carry their own timestamps.
	CheckpointTimestampMs int64
}

// Map converts one decoded event into the mutations that record it.
// The mapping is deterministic and field-for-field; the only business
// values it adds are the agent defaults.
func Map(ev events.Event, ref EventRef) ([]Mutation, error) {
	n := &narrower{}
	var out []Mutation

	switch ev := ev.(type) {
	case events.AgentRegistered:
		out = []Mutation{Insert{Target: TableAgent, Row: ir.IRObject{
			"agent_id":            id(ev.AgentID),
			"agent_address":       id(ev.AgentObjectAddress),
			"agent_owner_address": id(ev.AgentOwnerAddress),
			"stake_amount":        n.int("stake_amount", ev.StakeAmount),
			"rating":              ir.IRInt(InitialAgentRating),
			"buys":                ir.IRInt(InitialAgentBuys),
			"active":              ir.IRBool(true),
			"registered_at":       n.int("timestamp", ev.Timestamp),
		}}}

	case events.UserRegistered:
		out = []Mutation{Insert{Target: TableUser, Row: ir.IRObject{
			"user_id":               id(ev.UserID),
			"user_address":          id(ev.UserObjectAddress),
			"user_owner_address":    id(ev.UserOwnerAddress),
			"subscription_fee":      n.int("subscription_fee", ev.SubscriptionFee),
			"subscription_deadline": n.int("subscription_deadline", ev.SubscriptionDeadline),
			"active":                ir.IRBool(true),
			"registered_at":         n.int("timestamp", ev.Timestamp),
		}}}

	case events.BuyOfferCreated:
		out = []Mutation{Insert{Target: TableBuyOffer, Row: ir.IRObject{
			"buy_offer_id":             id(ev.BuyOfferID),
			"owner":                    id(ev.Owner),
			"product":                  ir.IRString(ev.Product),
			"price":                    n.int("price", ev.Price),
			"offer_type_is_time_based": ir.IRBool(ev.OfferTypeIsTimeBased),
			"deadline":                 n.int("deadline", ev.Deadline),
			"created_at":               n.int("timestamp", ev.Timestamp),
		}}}

	case events.SellOfferMade:
		// A revision (is_update) of an existing sell offer conflicts on
		// (buy_offer_id, sell_offer_id) and leaves the stored terms unchanged.
		out = []Mutation{Insert{Target: TableSellOffer, Row: ir.IRObject{
			"buy_offer_id":  id(ev.BuyOfferID),
			"sell_offer_id": id(ev.SellOfferID),
			"agent_id":      id(ev.AgentID),
			"agent_address": id(ev.AgentAddress),
			"store_link":    ir.IRString(ev.StoreLink),
			"price":         n.int("price", ev.Price),
			"is_update":     ir.IRBool(ev.IsUpdate),
		}}}

	case events.ManualBuy:
		out = []Mutation{Insert{Target: TableManualBuy, Row: ir.IRObject{
			"buy_offer_id":  id(ev.BuyOfferID),
			"buyer":         id(ev.Buyer),
			"agent_id":      id(ev.AgentID),
			"sell_offer_id": id(ev.SellOfferID),
			"store_link":    ir.IRString(ev.StoreLink),
			"product_price": n.int("product_price", ev.ProductPrice),
			"agent_fee":     n.int("agent_fee", ev.AgentFee),
			"total_paid":    n.int("total_paid", ev.TotalPaid),
		}}}

	case events.BuyOfferDeleted:
		// remaining_balance is refunded on chain and not stored.
		key := ir.IRObject{"buy_offer_id": id(ev.BuyOfferID)}
		out = []Mutation{
			Delete{Target: TableSellOffer, Key: key},
			Delete{Target: TableBuyOffer, Key: key},
		}

	case events.BuyOfferModified:
		out = []Mutation{Update{
			Target: TableBuyOffer,
			Key:    ir.IRObject{"buy_offer_id": id(ev.BuyOfferID)},
			Set:    ir.IRObject{"price": n.int("new_price", ev.NewPrice)},
		}}

	case events.ShopPurchase:
		key, err := ir.EventKey(ref.Checkpoint, ref.TxDigest, ref.EventIndex)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", ev.Kind(), err)
		}
		out = []Mutation{Insert{Target: TableShopPurchase, Row: ir.IRObject{
			"event_key":     ir.IRString(key),
			"agent_id":      id(ev.AgentID),
			"store_link":    ir.IRString(ev.StoreLink),
			"product_price": n.int("product_price", ev.ProductPrice),
			"agent_fee":     n.int("agent_fee", ev.AgentFee),
			"platform_fee":  n.int("platform_fee", ev.PlatformFee),
		}}}

	default:
		return nil, fmt.Errorf("map: unsupported event %T", ev)
	}

	if n.err != nil {
		return nil, fmt.Errorf("map %s: %w", ev.Kind(), n.err)
	}
	return out, nil
}

func id(a chain.Address) ir.IRString {
	return ir.IRString(a.String())
}

// Narrow converts an unsigned amount to int64, failing with ErrNarrowing.
func Narrow(field string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s=%d: %w", field, v, ErrNarrowing)
	}
	return int64(v), nil
}

// narrower applies Narrow to a sequence of fields and keeps the first error.
type narrower struct {
	err error
}

func (n *narrower) int(field string, v uint64) ir.IRInt {
	i, err := Narrow(field, v)
	if err != nil && n.err == nil {
		n.err = err
	}
	return ir.IRInt(i)
}
