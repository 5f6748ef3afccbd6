package events

import (
	"fmt"

	"github.com/roach88/eventidx/internal/bcs"
	"github.com/roach88/eventidx/internal/chain"
)

// DecodeError reports a payload that does not match the layout of its kind.
type DecodeError struct {
	Kind  Kind
	Field string // empty when the failure is not tied to a field (trailing bytes)
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s: field %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses the payload of an event already classified as kind.
// The whole payload must be consumed.
func Decode(kind Kind, payload []byte) (Event, error) {
	r := &fieldReader{kind: kind, d: bcs.NewDecoder(payload)}

	var ev Event
	switch kind {
	case KindAgentRegistered:
		ev = AgentRegistered{
			AgentID:            r.address("agent_id"),
			AgentObjectAddress: r.address("agent_object_address"),
			AgentOwnerAddress:  r.address("agent_owner_address"),
			StakeAmount:        r.u64("stake_amount"),
			Timestamp:          r.u64("timestamp"),
		}
	case KindUserRegistered:
		ev = UserRegistered{
			UserID:               r.address("user_id"),
			UserObjectAddress:    r.address("user_object_address"),
			UserOwnerAddress:     r.address("user_owner_address"),
			SubscriptionFee:      r.u64("subscription_fee"),
			SubscriptionDeadline: r.u64("subscription_deadline"),
			Timestamp:            r.u64("timestamp"),
		}
	case KindBuyOfferCreated:
		ev = BuyOfferCreated{
			BuyOfferID:           r.address("buy_offer_id"),
			Owner:                r.address("owner"),
			Product:              r.string("product"),
			Price:                r.u64("price"),
			OfferTypeIsTimeBased: r.bool("offer_type_is_time_based"),
			Deadline:             r.u64("deadline"),
			Timestamp:            r.u64("timestamp"),
		}
	case KindSellOfferMade:
		ev = SellOfferMade{
			BuyOfferID:   r.address("buy_offer_id"),
			SellOfferID:  r.address("sell_offer_id"),
			AgentID:      r.address("agent_id"),
			AgentAddress: r.address("agent_address"),
			StoreLink:    r.string("store_link"),
			Price:        r.u64("price"),
			IsUpdate:     r.bool("is_update"),
		}
	case KindManualBuy:
		ev = ManualBuy{
			BuyOfferID:   r.address("buy_offer_id"),
			Buyer:        r.address("buyer"),
			AgentID:      r.address("agent_id"),
			SellOfferID:  r.address("sell_offer_id"),
			StoreLink:    r.string("store_link"),
			ProductPrice: r.u64("product_price"),
			AgentFee:     r.u64("agent_fee"),
			TotalPaid:    r.u64("total_paid"),
		}
	case KindBuyOfferDeleted:
		ev = BuyOfferDeleted{
			BuyOfferID:       r.address("buy_offer_id"),
			Owner:            r.address("owner"),
			RemainingBalance: r.u64("remaining_balance"),
		}
	case KindBuyOfferModified:
		ev = BuyOfferModified{
			BuyOfferID:     r.address("buy_offer_id"),
			Owner:          r.address("owner"),
			OldPrice:       r.u64("old_price"),
			NewPrice:       r.u64("new_price"),
			PriceReduction: r.u64("price_reduction"),
		}
	case KindShopPurchase:
		ev = ShopPurchase{
			AgentID:      r.address("agent_id"),
			StoreLink:    r.string("store_link"),
			ProductPrice: r.u64("product_price"),
			AgentFee:     r.u64("agent_fee"),
			PlatformFee:  r.u64("platform_fee"),
		}
	default:
		return nil, fmt.Errorf("decode: unknown event kind %d", int(kind))
	}

	if err := r.finish(); err != nil {
		return nil, err
	}
	return ev, nil
}

// fieldReader reads struct fields in order and keeps the first error.
// Struct literal fields are evaluated in source order, which is the wire order.
type fieldReader struct {
	kind Kind
	d    *bcs.Decoder
	err  error
}

func (r *fieldReader) fail(field string, err error) {
	if r.err == nil {
		r.err = &DecodeError{Kind: r.kind, Field: field, Err: err}
	}
}

func (r *fieldReader) address(field string) chain.Address {
	if r.err != nil {
		return chain.Address{}
	}
	a, err := r.d.Address()
	if err != nil {
		r.fail(field, err)
	}
	return chain.Address(a)
}

func (r *fieldReader) u64(field string) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.d.U64()
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *fieldReader) string(field string) string {
	if r.err != nil {
		return ""
	}
	s, err := r.d.String()
	if err != nil {
		r.fail(field, err)
	}
	return s
}

func (r *fieldReader) bool(field string) bool {
	if r.err != nil {
		return false
	}
	v, err := r.d.Bool()
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *fieldReader) finish() error {
	if r.err != nil {
		return r.err
	}
	if err := r.d.Finish(); err != nil {
		return &DecodeError{Kind: r.kind, Err: err}
	}
	return nil
}
