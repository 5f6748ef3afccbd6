package events

import "strings"

// Kind identifies one of the known event types emitted by the market package.
type Kind int

const (
	KindAgentRegistered Kind = iota + 1
	KindUserRegistered
	KindBuyOfferCreated
	KindSellOfferMade
	KindManualBuy
	KindBuyOfferDeleted
	KindBuyOfferModified
	KindShopPurchase
)

// kindNames holds the Move struct name and the snake_case alias for each kind.
// Order is classification order: the first kind whose pattern matches wins.
var kindNames = []struct {
	kind   Kind
	pascal string
	snake  string
}{
	{KindAgentRegistered, "AgentRegistered", "agent_registered"},
	{KindUserRegistered, "UserRegistered", "user_registered"},
	{KindBuyOfferCreated, "BuyOfferCreated", "buy_offer_created"},
	{KindSellOfferMade, "SellOfferMade", "sell_offer_made"},
	{KindManualBuy, "ManualBuy", "manual_buy"},
	{KindBuyOfferDeleted, "BuyOfferDeleted", "buy_offer_deleted"},
	{KindBuyOfferModified, "BuyOfferModified", "buy_offer_modified"},
	{KindShopPurchase, "ShopPurchase", "shop_purchase"},
}

// AllKinds returns every known kind in classification order.
func AllKinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i, n := range kindNames {
		out[i] = n.kind
	}
	return out
}

// String returns the Move struct name of the kind.
func (k Kind) String() string {
	for _, n := range kindNames {
		if n.kind == k {
			return n.pascal
		}
	}
	return "Unknown"
}

// Classify maps a fully qualified event type tag to a known kind.
//
// A tag is of kind K if it contains "::<PascalName>" or ends with "::<snake_name>".
// ok is false for tags that match no kind; that is an admission miss, not an error.
func Classify(typeTag string) (k Kind, ok bool) {
	for _, n := range kindNames {
		if strings.Contains(typeTag, "::"+n.pascal) || strings.HasSuffix(typeTag, "::"+n.snake) {
			return n.kind, true
		}
	}
	return 0, false
}
