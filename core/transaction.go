package core

// TxStatus is the reconciled state of a submitted transaction
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxSuccess TxStatus = "success"
	TxFailed  TxStatus = "failed"
	// TxUnknown means polling ran out without observing a receipt
	TxUnknown TxStatus = "unknown"
)

// TransactionOutcome pairs a transaction hash with its reconciled status
type TransactionOutcome struct {
	Status TxStatus `json:"status"`
	Hash   string   `json:"tx_hash"`
}

// Terminal reports whether a receipt was observed
func (o TransactionOutcome) Terminal() bool {
	return o.Status == TxSuccess || o.Status == TxFailed
}
