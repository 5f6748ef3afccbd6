package events

import (
	"fmt"

	"github.com/roach88/eventidx/internal/bcs"
)

// Encode serializes an event into the payload layout Decode expects.
// It is the inverse of Decode and is used to build fixtures.
func Encode(ev Event) []byte {
	var e bcs.Encoder
	switch ev := ev.(type) {
	case AgentRegistered:
		e.Address(ev.AgentID).
			Address(ev.AgentObjectAddress).
			Address(ev.AgentOwnerAddress).
			U64(ev.StakeAmount).
			U64(ev.Timestamp)
	case UserRegistered:
		e.Address(ev.UserID).
			Address(ev.UserObjectAddress).
			Address(ev.UserOwnerAddress).
			U64(ev.SubscriptionFee).
			U64(ev.SubscriptionDeadline).
			U64(ev.Timestamp)
	case BuyOfferCreated:
		e.Address(ev.BuyOfferID).
			Address(ev.Owner).
			String(ev.Product).
			U64(ev.Price).
			Bool(ev.OfferTypeIsTimeBased).
			U64(ev.Deadline).
			U64(ev.Timestamp)
	case SellOfferMade:
		e.Address(ev.BuyOfferID).
			Address(ev.SellOfferID).
			Address(ev.AgentID).
			Address(ev.AgentAddress).
			String(ev.StoreLink).
			U64(ev.Price).
			Bool(ev.IsUpdate)
	case ManualBuy:
		e.Address(ev.BuyOfferID).
			Address(ev.Buyer).
			Address(ev.AgentID).
			Address(ev.SellOfferID).
			String(ev.StoreLink).
			U64(ev.ProductPrice).
			U64(ev.AgentFee).
			U64(ev.TotalPaid)
	case BuyOfferDeleted:
		e.Address(ev.BuyOfferID).
			Address(ev.Owner).
			U64(ev.RemainingBalance)
	case BuyOfferModified:
		e.Address(ev.BuyOfferID).
			Address(ev.Owner).
			U64(ev.OldPrice).
			U64(ev.NewPrice).
			U64(ev.PriceReduction)
	case ShopPurchase:
		e.Address(ev.AgentID).
			String(ev.StoreLink).
			U64(ev.ProductPrice).
			U64(ev.AgentFee).
			U64(ev.PlatformFee)
	default:
		panic(fmt.Sprintf("events: encode of unknown event %T", ev))
	}
	return e.Encoded()
}
