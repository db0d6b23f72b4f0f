// Package audit appends the ledger's immutable activity trail and serves the
// read-only queries behind the admin audit screens.
//
// Writes never fail the caller. A rejected insert is logged at ERROR and
// counted in audit_write_failures_total; the triggering operation carries on.
package audit
