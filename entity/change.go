package entity

import "encoding/json"

// ChangeKind mirrors the three event types of a table change stream.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is emitted for every committed row mutation. Row holds the full row
// for inserts and only the touched columns for updates; it is empty for
// deletes. Consumers must apply changes idempotently by EntityID.
type Change struct {
	Header     EventHeader     `json:"header"`
	Table      string          `json:"table"`
	Kind       ChangeKind      `json:"kind"`
	BusinessID string          `json:"business_id"`
	EntityID   string          `json:"entity_id"`
	Row        json.RawMessage `json:"row,omitempty"`
}

const (
	TableBookings  = "bookings"
	TableCustomers = "customers"
	TableInvoices  = "invoices"
	TableTickets   = "tickets"
)

// ChangesTopic is the single firehose topic; the router splits it into
// per-table ChangeTopic streams consumed by synchronizers.
const ChangesTopic = "changes"

func ChangeTopic(table string) string {
	return ChangesTopic + "." + table
}
