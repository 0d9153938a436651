package domain

import "time"

// Product enumerates the independently purchasable plans.
type Product string

const (
	ProductMain   Product = "main"
	ProductFMD    Product = "fmd"
	ProductBundle Product = "bundle"
	ProductDry    Product = "dry"
)

// Valid reports whether p is a known product.
func (p Product) Valid() bool {
	switch p {
	case ProductMain, ProductFMD, ProductBundle, ProductDry:
		return true
	}
	return false
}

// User is a Telegram user known to the bot. Created on first interaction,
// never deleted. Paid flags are mutated only by the payment workflow.
type User struct {
	ID        int64
	Username  string
	FirstName string

	PaidMain   bool
	PaidFMD    bool
	PaidBundle bool
	PaidDry    bool

	PaymentRequestedMain   *time.Time
	PaymentRequestedFMD    *time.Time
	PaymentRequestedBundle *time.Time
	PaymentRequestedDry    *time.Time

	CreatedAt time.Time
}

// Paid reports whether the user has paid for the given product.
func (u *User) Paid(p Product) bool {
	switch p {
	case ProductMain:
		return u.PaidMain
	case ProductFMD:
		return u.PaidFMD
	case ProductBundle:
		return u.PaidBundle
	case ProductDry:
		return u.PaidDry
	}
	return false
}
