package access

import (
	"fmt"

	"nexa/pkg/types"
)

var (
	ErrNoIdentity = fmt.Errorf("%w: no identity", types.ErrAuthorization)
	ErrNotMember  = fmt.Errorf("%w: not the instructor and not enrolled", types.ErrAuthorization)
)
