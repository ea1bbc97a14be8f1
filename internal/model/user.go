package model

import "time"

// Role is the value carried in the JWT "role" claim.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleProvider Role = "PROVIDER"
	RoleAdmin    Role = "ADMIN"
)

// User represents a row in the `users` table. Customers and providers share
// this table; provider-only attributes live in provider_profiles.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – CUSTOMER, PROVIDER or ADMIN.
//  Location     – last known profile location (nullable).
//  Rating       – running average of ratings received on completed bookings.
//  RatingCount  – number of ratings the average is computed over.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	Name         string    // users.name
	PasswordHash string    // users.password_hash
	Role         Role      // users.role
	Location     *GeoPoint // users.lat / users.lng
	Rating       float64   // users.rating
	RatingCount  int       // users.rating_count
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the token value is stored.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Actor is the authenticated caller of a booking operation.
type Actor struct {
	UserID uint64
	Role   Role
}
