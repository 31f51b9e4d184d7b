package supplier

import "time"

// Supplier is a vendor goods are received from and returned to.
type Supplier struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters narrows supplier listings.
type ListFilters struct {
	Page    int
	PerPage int
	Search  string
	SortBy  string
	SortDir string
}

const (
	CodeInvalidSupplier  = "INVALID_SUPPLIER"
	CodeSupplierNotFound = "SUPPLIER_NOT_FOUND"
	CodeSupplierInUse    = "SUPPLIER_IN_USE"
	CodeDuplicateCode    = "DUPLICATE_SUPPLIER_CODE"
)
