package models

// BookStatus is the circulation state of a book
type BookStatus string

const (
	BookAvailable BookStatus = "Available"
	BookLoaned    BookStatus = "Loaned"
)

// Book represents a catalog entry. Books are read-only from the client core's
// perspective; mutations go through the remote service.
type Book struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	ISBN        string     `json:"isbn"`
	PublishDate Date       `json:"publish_date"`
	Status      BookStatus `json:"status"`
	Category    string     `json:"category"`
}

// MemberStatus marks whether a membership is in good standing
type MemberStatus string

const (
	MemberActive   MemberStatus = "Active"
	MemberInactive MemberStatus = "Inactive"
)

// Member represents a library member record
type Member struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"display_name"`
	MembershipID string       `json:"membership_id"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	Status       MemberStatus `json:"status"`
	Roles        []string     `json:"roles"`
}
