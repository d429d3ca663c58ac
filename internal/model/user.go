package model

import "time"

// Role names stored in users.role and carried in the JWT "role" claim.
const (
	RoleAttendee  = "ATTENDEE"
	RoleStaff     = "STAFF"
	RoleOrganizer = "ORGANIZER"
)

// User represents an application user record as stored in the `users`
// table.  Identity and role are owned by the auth layer; the ticketing
// core only reads them to check eligibility and to display attendee names
// at the entrance.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	FullName     – display name shown to staff on a successful scan.
//	PasswordHash – bcrypt hashed password.
//	Role         – ATTENDEE, STAFF or ORGANIZER.
//	IsActive     – whether the account is active.
type User struct {
	ID           uint64
	Email        string
	FullName     string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName returns the name shown to check-in staff, falling back to
// the email address for accounts without a name.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
