package model

// Ledger event kinds.
const (
    LedgerDebit    = "debit"
    LedgerRefund   = "refund"
    LedgerTopUp    = "topup"
    LedgerAdminSet = "admin_set"
    LedgerForfeit  = "forfeit"
)

// LedgerEvent is one append-only row of `ledger_events`.  It is written
// in the same transaction as the balance change (or forfeiture) it
// records.  Amount is always non-negative; Kind says which way it went.
// For admin_set events Amount is the new balance.
type LedgerEvent struct {
    ID           string  `json:"id"`
    UserID       uint64  `json:"user_id"`
    ActorID      *uint64 `json:"actor_id,omitempty"`
    Kind         string  `json:"kind"`
    Amount       int64   `json:"amount"`
    BalanceAfter int64   `json:"balance_after"`
    StallID      *uint64 `json:"stall_id,omitempty"`
    Reason       string  `json:"reason"`
    OccurredAt   string  `json:"occurred_at"`
}
