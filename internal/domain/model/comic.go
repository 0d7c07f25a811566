package model

// Comic is the catalog's view of a comic as far as payments care.
type Comic struct {
	ID       string
	Title    string
	Price    int64 // minor units
	Currency string
	IsFree   bool
}
