// Package transaction creates marketplace transactions and owns the parts of
// their lifecycle that happen before funds are held: fee split, approval,
// cancellation and integrity verification. History, receipts and revenue
// reporting are read-only views over the same rows.
package transaction
