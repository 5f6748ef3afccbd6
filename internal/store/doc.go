// Package store provides durable storage for indexed market entities.
//
// The store holds six entity tables and one progress table:
//   - Agent, User, BuyOffer: one row per on-chain object, keyed by its ID
//   - SellOffer: keyed by (buy_offer_id, sell_offer_id), references BuyOffer
//   - ManualBuy: keyed by (buy_offer_id, sell_offer_id), kept after the offer is gone
//   - ShopPurchase: append-only, keyed by the event's position on chain
//   - watermarks: last committed checkpoint per pipeline
//
// # Critical Patterns
//
// Batch atomicity
//   - Commit applies a whole batch in one transaction or nothing at all
//   - CommitWithWatermark writes progress in that same transaction
//
// Idempotency
//   - Inserts use ON CONFLICT (natural key) DO NOTHING
//   - Re-committing a batch affects zero rows
//
// Referential order
//   - Deleting a BuyOffer removes its SellOffer rows first
//
// # Database Configuration
//
// PostgreSQL (postgres:// URLs) goes through a pgx pool exposed as database/sql.
// SQLite (everything else) is configured with:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
