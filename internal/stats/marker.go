package stats

// Collector is the capability a handler type declares to opt into
// statistics collection.
type Collector interface {
	CollectsStatistics()
}

// Identifiable exposes the stable job identity carried by a handler.
type Identifiable interface {
	JobUUID() string
}

// Tracked is embedded in handler structs to opt them in. The UUID is
// assigned at enqueue time and travels with the serialized handler.
//
//	type SendInvoice struct {
//		stats.Tracked
//		InvoiceID int `json:"invoice_id"`
//	}
type Tracked struct {
	UUID string `json:"uuid"`
}

func (Tracked) CollectsStatistics() {}

func (t Tracked) JobUUID() string { return t.UUID }

// AssignJobUUID sets the identity if none is set yet.
func (t *Tracked) AssignJobUUID(id string) {
	if t.UUID == "" {
		t.UUID = id
	}
}
