package models

import "time"

// Role distinguishes merchants, who create plans, from customers, who pay them.
type Role string

const (
	RoleMerchant Role = "merchant"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMerchant || r == RoleCustomer
}

// User represents a user in the system
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"` // Not serialized
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller as seen by the core. It carries an
// explicit role tag; authorization decisions switch on it rather than probing
// for attributes.
type Identity struct {
	UserID int64
	Email  string
	Role   Role
}

// IsMerchant reports whether the identity belongs to a merchant.
func (i Identity) IsMerchant() bool {
	return i.Role == RoleMerchant
}

// OwnsPlan reports whether the identity may read the given plan: the merchant
// who created it or the customer it is addressed to.
func (i Identity) OwnsPlan(p *PaymentPlan) bool {
	if i.Role == RoleMerchant {
		return p.MerchantID == i.UserID
	}
	return p.CustomerEmail == i.Email
}

// CanPay reports whether the identity may pay installments of the given plan.
// Only the customer the plan is addressed to can pay.
func (i Identity) CanPay(p *PaymentPlan) bool {
	return i.Role == RoleCustomer && p.CustomerEmail == i.Email
}
