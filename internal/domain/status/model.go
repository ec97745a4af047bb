package status

// Name is the stable identifier of a queue status. Backend ids are never
// hardcoded; they are resolved from a Name through a Catalog.
type Name string

const (
	Waiting       Name = "WAITING"
	Anamnesa      Name = "ANAMNESA"
	WaitingDoctor Name = "WAITING_DOCTOR"
	WithDoctor    Name = "WITH_DOCTOR"
	Done          Name = "DONE"
	NoShow        Name = "NO_SHOW"
	Cancelled     Name = "CANCELLED"
)

// Canonical lists every status in workflow order. Summaries and the catalog
// listing always follow this order.
var Canonical = []Name{Waiting, Anamnesa, WaitingDoctor, WithDoctor, Done, NoShow, Cancelled}

// Valid reports whether n is one of the canonical names.
func (n Name) Valid() bool {
	for _, c := range Canonical {
		if c == n {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition may leave n.
func (n Name) Terminal() bool {
	return n == Done || n == NoShow || n == Cancelled
}

// Status maps to the statuses table.
type Status struct {
	ID         int64  `db:"id" json:"id"`
	StatusName Name   `db:"status_name" json:"status_name"`
	Label      string `db:"label" json:"label"`
}
