package model

// LeadStatus is the lifecycle state of a lead. Status changes must go
// through the lifecycle state machine, never by direct assignment.
type LeadStatus string

const (
	StatusNew         LeadStatus = "new"
	StatusUnassigned  LeadStatus = "unassigned"
	StatusAssigned    LeadStatus = "assigned"
	StatusContacted   LeadStatus = "contacted"
	StatusQualified   LeadStatus = "qualified"
	StatusBooked      LeadStatus = "booked"
	StatusConverted   LeadStatus = "converted"
	StatusWon         LeadStatus = "won"
	StatusLost        LeadStatus = "lost"
	StatusDNC         LeadStatus = "dnc"
	StatusQuarantined LeadStatus = "quarantined"
)

// AllStatuses lists every defined lead status.
func AllStatuses() []LeadStatus {
	return []LeadStatus{
		StatusNew, StatusUnassigned, StatusAssigned, StatusContacted,
		StatusQualified, StatusBooked, StatusConverted, StatusWon,
		StatusLost, StatusDNC, StatusQuarantined,
	}
}

// Valid reports whether s is one of the defined statuses.
func (s LeadStatus) Valid() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

func (s LeadStatus) String() string {
	return string(s)
}
