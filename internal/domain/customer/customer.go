package customer

import "time"

// Customer is the buyer an order is placed for. Customers are maintained elsewhere;
// the order workflow only resolves them by id.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
