package model

// Skip explains why one order in a batch was passed over.
type Skip struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// FillReport summarizes one settlement batch. A batch where nothing settled
// is not an error; callers inspect Skipped for the reasons.
type FillReport struct {
	Settled []string `json:"settled"`
	Skipped []Skip   `json:"skipped"`
}

// Empty reports whether no order in the batch settled.
func (r *FillReport) Empty() bool {
	return len(r.Settled) == 0
}
