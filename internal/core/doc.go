// Package core provides the business logic of the transaction ledger.
//
// This package holds all domain rules independent of any transport layer.
// The HTTP handlers in internal/web and the txctl command use it the same way.
//
// # Records
//
// A [Transaction] is a dated, described amount in a currency. Records are
// never removed physically; deleting one sets its Deleted flag. At most one
// non-deleted record may exist per (date, description) pair, enforced by a
// pre-check in [Service] and by the partial unique index declared on the
// model.
//
// # Import
//
// CSV imports run in a streaming fashion:
//
//  1. [Service.ImportReader] wraps the input with BOM skipping and UTF-8 sanitization
//  2. Rows are decoded with [ReadRows] and validated one by one
//  3. Valid rows are checked against stored records in one query, then against
//     each other
//  4. New records are written through [Store.CreateBatch] in batches
//
// Rejected rows are reported back as [RowError] values, never silently dropped.
//
// # Errors
//
// Every error returned by [Service] carries a [Kind] that transports map to a
// status code; see [KindOf].
package core
