package models

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Account statuses. Transitions are admin-only and one-directional:
// pending -> approved or pending -> rejected.
const (
	AccountPending  = "pending"
	AccountApproved = "approved"
	AccountRejected = "rejected"
)

type Account struct {
	ID        int       `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Role      string    `json:"role" db:"role"`
	Email     string    `json:"email,omitempty" db:"email"`
	ClubName  *string   `json:"clubName" db:"club_name"`
	Cash      int64     `json:"cash" db:"cash"` // in cents
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
