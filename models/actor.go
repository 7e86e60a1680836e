package models

type Role string

const (
	RoleBuyer         Role = "buyer"
	RoleStore         Role = "store"
	RoleAdmin         Role = "admin"
	RoleDeliveryAgent Role = "delivery_agent"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleStore, RoleAdmin, RoleDeliveryAgent:
		return true
	}
	return false
}

// Actor is the authenticated caller of an operation. StoreID is only set for
// store staff.
type Actor struct {
	ID      uint  `json:"id"`
	Role    Role  `json:"role"`
	StoreID *uint `json:"storeId,omitempty"`
}

// OwnsStore reports whether a store actor works for storeID.
func (a Actor) OwnsStore(storeID uint) bool {
	return a.Role == RoleStore && a.StoreID != nil && *a.StoreID == storeID
}
