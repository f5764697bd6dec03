package types

import "github.com/pkg/errors"

// Domain errors for record validation
var (
	ErrMissingListingID = errors.New("listing id is required")
	ErrNegativePrice    = errors.New("price cannot be negative")
	ErrNegativeArea     = errors.New("gross area cannot be negative")
	ErrNotFinite        = errors.New("value must be a finite number")
)
