// Package calc defines the domain model shared by every layer of the
// calculation pipeline: the request a caller submits, the status record that
// observers read, the result union produced by the backend and the fan-out
// bookkeeping used for per-region reports.
//
// Status transitions follow pending → computing* → {complete|error}. A
// terminal status only changes when a caller explicitly restarts the
// calculation, which opens a new run in the pending state.
package calc
