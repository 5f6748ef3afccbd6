package mutation

// Table names an entity table. Values are the SQL table names.
type Table string

const (
	TableAgent        Table = "Agent"
	TableUser         Table = "User"
	TableBuyOffer     Table = "BuyOffer"
	TableSellOffer    Table = "SellOffer"
	TableManualBuy    Table = "ManualBuy"
	TableShopPurchase Table = "ShopPurchase"
)

// Tables returns every entity table, parents before children.
func Tables() []Table {
	return []Table{TableAgent, TableUser, TableBuyOffer, TableSellOffer, TableManualBuy, TableShopPurchase}
}

// naturalKeys lists the conflict columns that make inserts idempotent.
var naturalKeys = map[Table][]string{
	TableAgent:        {"agent_id"},
	TableUser:         {"user_id"},
	TableBuyOffer:     {"buy_offer_id"},
	TableSellOffer:    {"buy_offer_id", "sell_offer_id"},
	TableManualBuy:    {"buy_offer_id", "sell_offer_id"},
	TableShopPurchase: {"event_key"},
}

// NaturalKey returns the columns that uniquely identify a row of t.
func (t Table) NaturalKey() []string {
	return naturalKeys[t]
}

// Valid reports whether t is a known entity table.
func (t Table) Valid() bool {
	_, ok := naturalKeys[t]
	return ok
}
