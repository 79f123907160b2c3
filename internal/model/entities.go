// Package model defines the core domain types shared across the application.
package model

import "time"

// Account represents a source of funds that transactions are recorded against.
type Account struct {
	CreatedAt time.Time
	ID        string
	Name      string
	IsDefault bool
}

// Category labels what a transaction was for.
type Category struct {
	CreatedAt time.Time
	ID        string
	Name      string
	IsDefault bool
}

// Payee is the counterparty of a transaction.
type Payee struct {
	CreatedAt time.Time
	ID        string
	Name      string
	IsDefault bool
}
