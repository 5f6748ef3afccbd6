// Package ir holds the column values carried by storage mutations and their
// canonical JSON form.
//
// ir imports nothing internal. Every other package that needs to describe a
// row (mutation, store, cli) goes through these types.
//
// Key design constraints:
//   - NO float types anywhere - amounts are int64 after narrowing
//   - IRObject keys are column names in snake_case
//   - Canonical JSON (RFC 8785) is the only form used for hashing and golden output
package ir
