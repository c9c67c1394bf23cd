package product

import "errors"

var (
	// ErrInvalidInput indicates a blank product_uid/name or project reference.
	ErrInvalidInput = errors.New("invalid product input")
	// ErrProductNotFound indicates no product matches the given uid or name.
	ErrProductNotFound = errors.New("product not found")
)
