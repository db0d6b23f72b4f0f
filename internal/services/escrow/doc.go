// Package escrow holds, releases and refunds transaction funds.
//
// Every mutation re-reads current state and then applies compare-and-swap
// updates inside one database transaction, so two callers racing on the same
// escrow have exactly one winner. Releases, whether by an operator, by the
// buyer confirming delivery or by the timeout sweeper, share one code path.
package escrow
