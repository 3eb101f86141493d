package api

import (
	"fmt"

	"nexa/pkg/types"
)

var ErrMalformedBody = fmt.Errorf("%w: request body must be a JSON object", types.ErrValidation)
