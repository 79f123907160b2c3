package model

import "time"

// Transaction is a single recorded expense or income entry.
// CategoryID and PayeeID are optional; an empty string means "not set"
// and is stored as NULL rather than an empty value.
type Transaction struct {
	Date       time.Time
	ID         string
	AccountID  string
	CategoryID string
	PayeeID    string
	Value      float64
}

// UsageDetails is the most frequently used account/category/payee
// combination for transactions matching a given amount. Empty id fields
// mean no inference is available for that field. Count is the number of
// historical transactions backing the inference.
type UsageDetails struct {
	AccountID  string
	CategoryID string
	PayeeID    string
	Count      int
}

// Empty reports whether the inference carries no usable ids.
func (u UsageDetails) Empty() bool {
	return u.AccountID == "" && u.CategoryID == "" && u.PayeeID == ""
}
