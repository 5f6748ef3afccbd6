// Package harness runs end-to-end indexing scenarios.
//
// A scenario describes checkpoints as lists of typed events, indexes them
// through the real scanner, ingest runner and a fresh in-memory SQLite store,
// then checks assertions against the resulting tables and watermark.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: offer_lifecycle
//	description: "An offer is created, answered and deleted"
//	pipeline: events            # optional, default events
//	package_id: "0xabc"         # optional, default testutil.PackageID
//	checkpoints:
//	  - sequence: 0
//	    timestamp_ms: 1700000000000   # optional
//	    transactions:
//	      - digest: tx-1
//	        events:
//	          - type: BuyOfferCreated
//	            fields: { buy_offer_id: "0x10", owner: "0x20", product: lamp, price: 40 }
//	          - type: AgentRegistered
//	            package: "0xabd"      # emitted by another package
//	            fields: { agent_id: "0x1" }
//	          - type: ManualBuy
//	            raw: "ff00"           # hex payload, bypasses encoding
//	expect_error: DECODE_FAILED       # optional scan error code
//	assertions:
//	  - type: row_count
//	    table: BuyOffer
//	    count: 1
//	  - type: final_state
//	    table: BuyOffer
//	    where: { buy_offer_id: "0x10" }
//	    expect: { price: 40 }
//	  - type: watermark
//	    checkpoint: 0
//	  - type: mutation_count
//	    table: SellOffer
//	    op: delete
//	    count: 1
//
// Event fields use the snake_case names of the on-chain struct. Omitted
// fields are zero. Address fields accept short forms such as "0x1" and are
// compared in their padded form.
//
// # Assertion Types
//
//   - row_count: the number of rows in table, optionally filtered by where
//   - final_state: exactly one row matches where and has the expect values
//   - watermark: the pipeline's committed checkpoint (absent when checkpoint is -1)
//   - mutation_count: the number of mutations with table and op in the trace
//
// # Golden Files
//
// RunWithGolden compares the ordered mutation trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
