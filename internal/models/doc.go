// Package models defines the core domain records for the tally ledger.
//
// # Records
//
//   - Obligation: a credit extended to a customer or a deposit collected
//     for a future event, carrying a face amount to be settled over time
//   - Payment: a partial or full settlement recorded against one Obligation
//   - Totals: the derived paid/remaining/status view for an Obligation
//
// # Design Principles
//
//  1. **IDs over pointers**: records reference each other by ID strings,
//     never by pointer, so they can round-trip through any store or feed
//  2. **Whole currency units**: every amount is an int64 of whole units;
//     rounding happens once at the input boundary (see internal/money)
//  3. **Derived state is never persisted**: Totals are recomputed from
//     Obligation + Payments, not stored, so they cannot drift
//
// The remote store is the sole owner of durable state; everything here is
// either a row image of it or derived from one.
package models
