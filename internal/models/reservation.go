package models

// ReservationStatus is the lifecycle state of a reservation
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "Active"
	ReservationFulfilled ReservationStatus = "Fulfilled"
	ReservationCancelled ReservationStatus = "Cancelled"
)

// Reservation represents a member's hold on a book. Priority 1 is next in
// line; active priorities on the same book are unique and dense.
type Reservation struct {
	ID              string            `json:"id"`
	BookID          string            `json:"book_id"`
	MemberID        string            `json:"member_id"`
	ReservationDate Date              `json:"reservation_date"`
	Priority        int               `json:"priority"`
	Status          ReservationStatus `json:"status"`
}

// PriorityBand buckets a queue position for display: "high" for the front of
// the queue, "medium" for the middle, "low" beyond that.
func (r *Reservation) PriorityBand() string {
	switch {
	case r.Priority <= 3:
		return "high"
	case r.Priority <= 6:
		return "medium"
	default:
		return "low"
	}
}
