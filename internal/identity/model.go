package identity

import (
	"net/mail"
	"strings"
	"time"

	"github.com/waylio/waylio-platform/internal/apperr"
)

// Role is the caller's authorization role.
type Role string

const (
	RolePatient   Role = "PATIENT"
	RoleDoctor    Role = "DOCTOR"
	RoleReception Role = "RECEPTION"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleReception, RoleAdmin:
		return true
	}
	return false
}

// User is an account of any role.
type User struct {
	ID           string    `json:"id"`
	UniqueID     string    `json:"uniqueId,omitempty"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	PushToken    string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Summary is the public projection embedded in appointment and queue payloads.
type Summary struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Summary projects the user.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email, Phone: u.Phone}
}

// RegisterPatientRequest is the body of a patient self-registration.
type RegisterPatientRequest struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// Validate checks required fields and password length.
func (r *RegisterPatientRequest) Validate() error {
	fields := validatePerson(r.Email, r.FirstName, r.LastName)
	if len(r.Password) < MinPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return apperr.Validation("Invalid registration request", fields)
	}
	return nil
}

// CreateStaffRequest is an admin request to create a doctor or reception account.
type CreateStaffRequest struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
}

// Validate checks required fields and that the role is staff.
func (r *CreateStaffRequest) Validate() error {
	fields := validatePerson(r.Email, r.FirstName, r.LastName)
	if r.Role != RoleDoctor && r.Role != RoleReception {
		fields["role"] = "must be DOCTOR or RECEPTION"
	}
	if len(fields) > 0 {
		return apperr.Validation("Invalid staff request", fields)
	}
	return nil
}

func validatePerson(email, first, last string) map[string]string {
	fields := map[string]string{}
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if strings.TrimSpace(first) == "" {
		fields["firstName"] = "is required"
	}
	if strings.TrimSpace(last) == "" {
		fields["lastName"] = "is required"
	}
	return fields
}
