// Package events defines the typed events emitted by the agent market package
// and decodes them from their binary payloads.
//
// Event is a closed set: only the eight structs in this file implement it.
// Consumers switch on the concrete type and must handle every variant.
package events

import "github.com/roach88/eventidx/internal/chain"

// Event is a decoded market event.
type Event interface {
	Kind() Kind
	event() // sealed
}

// AgentRegistered is emitted when an agent stakes and registers.
type AgentRegistered struct {
	AgentID            chain.Address
	AgentObjectAddress chain.Address
	AgentOwnerAddress  chain.Address
	StakeAmount        uint64
	Timestamp          uint64
}

// UserRegistered is emitted when a user pays a subscription and registers.
type UserRegistered struct {
	UserID               chain.Address
	UserObjectAddress    chain.Address
	UserOwnerAddress     chain.Address
	SubscriptionFee      uint64
	SubscriptionDeadline uint64
	Timestamp            uint64
}

// BuyOfferCreated is emitted when a user opens a buy offer for a product.
type BuyOfferCreated struct {
	BuyOfferID           chain.Address
	Owner                chain.Address
	Product              string
	Price                uint64
	OfferTypeIsTimeBased bool
	Deadline             uint64
	Timestamp            uint64
}

// SellOfferMade is emitted when an agent answers a buy offer, or revises its answer.
type SellOfferMade struct {
	BuyOfferID   chain.Address
	SellOfferID  chain.Address
	AgentID      chain.Address
	AgentAddress chain.Address
	StoreLink    string
	Price        uint64
	IsUpdate     bool
}

// ManualBuy is emitted when a buyer accepts a sell offer and pays.
type ManualBuy struct {
	BuyOfferID   chain.Address
	Buyer        chain.Address
	AgentID      chain.Address
	SellOfferID  chain.Address
	StoreLink    string
	ProductPrice uint64
	AgentFee     uint64
	TotalPaid    uint64
}

// BuyOfferDeleted is emitted when a buy offer is cancelled and its balance refunded.
type BuyOfferDeleted struct {
	BuyOfferID       chain.Address
	Owner            chain.Address
	RemainingBalance uint64
}

// BuyOfferModified is emitted when the owner lowers the price of a buy offer.
type BuyOfferModified struct {
	BuyOfferID     chain.Address
	Owner          chain.Address
	OldPrice       uint64
	NewPrice       uint64
	PriceReduction uint64
}

// ShopPurchase is emitted for purchases through an agent's shop.
type ShopPurchase struct {
	AgentID      chain.Address
	StoreLink    string
	ProductPrice uint64
	AgentFee     uint64
	PlatformFee  uint64
}

func (AgentRegistered) Kind() Kind  { return KindAgentRegistered }
func (UserRegistered) Kind() Kind   { return KindUserRegistered }
func (BuyOfferCreated) Kind() Kind  { return KindBuyOfferCreated }
func (SellOfferMade) Kind() Kind    { return KindSellOfferMade }
func (ManualBuy) Kind() Kind        { return KindManualBuy }
func (BuyOfferDeleted) Kind() Kind  { return KindBuyOfferDeleted }
func (BuyOfferModified) Kind() Kind { return KindBuyOfferModified }
func (ShopPurchase) Kind() Kind     { return KindShopPurchase }

func (AgentRegistered) event()  {}
func (UserRegistered) event()   {}
func (BuyOfferCreated) event()  {}
func (SellOfferMade) event()    {}
func (ManualBuy) event()        {}
func (BuyOfferDeleted) event()  {}
func (BuyOfferModified) event() {}
func (ShopPurchase) event()     {}
