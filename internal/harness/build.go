package harness

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/events"
	"github.com/roach88/eventidx/internal/testutil"
)

// buildCheckpoints turns scenario steps into chain checkpoints.
func buildCheckpoints(s *Scenario, packageID string) ([]*chain.Checkpoint, error) {
	out := make([]*chain.Checkpoint, 0, len(s.Checkpoints))
	for i, step := range s.Checkpoints {
		b := testutil.NewCheckpoint(step.Sequence)
		if step.TimestampMs != nil {
			b.At(*step.TimestampMs)
		}
		for j, tx := range step.Transactions {
			evs := make([]chain.Event, 0, len(tx.Events))
			for k, ev := range tx.Events {
				raw, err := buildEvent(ev, packageID)
				if err != nil {
					return nil, fmt.Errorf("checkpoints[%d].transactions[%d].events[%d]: %w", i, j, k, err)
				}
				evs = append(evs, raw)
			}
			b.Tx(tx.Digest, evs...)
		}
		cp := b.Build()
		cp.Epoch = step.Epoch
		out = append(out, cp)
	}
	return out, nil
}

func buildEvent(step EventStep, packageID string) (chain.Event, error) {
	pkg := packageID
	if step.Package != "" {
		pkg = step.Package
	}

	tag := step.Type
	if !strings.Contains(tag, "::") {
		tag = pkg + "::agent_market::" + step.Type
	}

	if step.Raw != "" {
		payload, err := hex.DecodeString(step.Raw)
		if err != nil {
			return chain.Event{}, fmt.Errorf("raw payload: %w", err)
		}
		return testutil.RawEvent(tag, payload), nil
	}

	kind, ok := kindByName(step.Type)
	if !ok {
		if kind, ok = events.Classify(tag); !ok {
			return chain.Event{}, fmt.Errorf("unknown event type %q without raw payload", step.Type)
		}
	}
	ev, err := eventFromFields(kind, step.Fields)
	if err != nil {
		return chain.Event{}, fmt.Errorf("%s: %w", kind, err)
	}
	return testutil.RawEvent(tag, events.Encode(ev)), nil
}

// eventFromFields builds a typed event. Omitted fields are zero; unknown
// fields are an error.
func eventFromFields(kind events.Kind, fields map[string]any) (events.Event, error) {
	f := &fieldSet{fields: fields, used: map[string]bool{}}

	var ev events.Event
	switch kind {
	case events.KindAgentRegistered:
		ev = events.AgentRegistered{
			AgentID:            f.address("agent_id"),
			AgentObjectAddress: f.address("agent_object_address"),
			AgentOwnerAddress:  f.address("agent_owner_address"),
			StakeAmount:        f.u64("stake_amount"),
			Timestamp:          f.u64("timestamp"),
		}
	case events.KindUserRegistered:
		ev = events.UserRegistered{
			UserID:               f.address("user_id"),
			UserObjectAddress:    f.address("user_object_address"),
			UserOwnerAddress:     f.address("user_owner_address"),
			SubscriptionFee:      f.u64("subscription_fee"),
			SubscriptionDeadline: f.u64("subscription_deadline"),
			Timestamp:            f.u64("timestamp"),
		}
	case events.KindBuyOfferCreated:
		ev = events.BuyOfferCreated{
			BuyOfferID:           f.address("buy_offer_id"),
			Owner:                f.address("owner"),
			Product:              f.str("product"),
			Price:                f.u64("price"),
			OfferTypeIsTimeBased: f.boolean("offer_type_is_time_based"),
			Deadline:             f.u64("deadline"),
			Timestamp:            f.u64("timestamp"),
		}
	case events.KindSellOfferMade:
		ev = events.SellOfferMade{
			BuyOfferID:   f.address("buy_offer_id"),
			SellOfferID:  f.address("sell_offer_id"),
			AgentID:      f.address("agent_id"),
			AgentAddress: f.address("agent_address"),
			StoreLink:    f.str("store_link"),
			Price:        f.u64("price"),
			IsUpdate:     f.boolean("is_update"),
		}
	case events.KindManualBuy:
		ev = events.ManualBuy{
			BuyOfferID:   f.address("buy_offer_id"),
			Buyer:        f.address("buyer"),
			AgentID:      f.address("agent_id"),
			SellOfferID:  f.address("sell_offer_id"),
			StoreLink:    f.str("store_link"),
			ProductPrice: f.u64("product_price"),
			AgentFee:     f.u64("agent_fee"),
			TotalPaid:    f.u64("total_paid"),
		}
	case events.KindBuyOfferDeleted:
		ev = events.BuyOfferDeleted{
			BuyOfferID:       f.address("buy_offer_id"),
			Owner:            f.address("owner"),
			RemainingBalance: f.u64("remaining_balance"),
		}
	case events.KindBuyOfferModified:
		ev = events.BuyOfferModified{
			BuyOfferID:     f.address("buy_offer_id"),
			Owner:          f.address("owner"),
			OldPrice:       f.u64("old_price"),
			NewPrice:       f.u64("new_price"),
			PriceReduction: f.u64("price_reduction"),
		}
	case events.KindShopPurchase:
		ev = events.ShopPurchase{
			AgentID:      f.address("agent_id"),
			StoreLink:    f.str("store_link"),
			ProductPrice: f.u64("product_price"),
			AgentFee:     f.u64("agent_fee"),
			PlatformFee:  f.u64("platform_fee"),
		}
	default:
		return nil, fmt.Errorf("unsupported kind %s", kind)
	}

	if err := f.finish(); err != nil {
		return nil, err
	}
	return ev, nil
}

// fieldSet reads typed values from a YAML field map. The first error sticks.
type fieldSet struct {
	fields map[string]any
	used   map[string]bool
	err    error
}

func (f *fieldSet) get(name string) (any, bool) {
	f.used[name] = true
	v, ok := f.fields[name]
	return v, ok && f.err == nil
}

func (f *fieldSet) fail(name string, v any, want string) {
	if f.err == nil {
		f.err = fmt.Errorf("field %s: %v (%T) is not %s", name, v, v, want)
	}
}

func (f *fieldSet) address(name string) chain.Address {
	v, ok := f.get(name)
	if !ok {
		return chain.Address{}
	}
	s, isString := v.(string)
	if !isString {
		f.fail(name, v, "an address string")
		return chain.Address{}
	}
	a, err := chain.ParseAddress(s)
	if err != nil {
		f.err = fmt.Errorf("field %s: %w", name, err)
	}
	return a
}

func (f *fieldSet) u64(name string) uint64 {
	v, ok := f.get(name)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		if n >= 0 {
			return uint64(n)
		}
	case int64:
		if n >= 0 {
			return uint64(n)
		}
	case uint64:
		return n
	}
	f.fail(name, v, "an unsigned integer")
	return 0
}

func (f *fieldSet) str(name string) string {
	v, ok := f.get(name)
	if !ok {
		return ""
	}
	s, isString := v.(string)
	if !isString {
		f.fail(name, v, "a string")
	}
	return s
}

func (f *fieldSet) boolean(name string) bool {
	v, ok := f.get(name)
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	if !isBool {
		f.fail(name, v, "a bool")
	}
	return b
}

func (f *fieldSet) finish() error {
	if f.err != nil {
		return f.err
	}
	var unknown []string
	for name := range f.fields {
		if !f.used[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("unknown fields %s", strings.Join(unknown, ", "))
	}
	return nil
}
