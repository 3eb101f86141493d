package interfaces

import (
	"fmt"

	"nexa/pkg/types"
)

// Lookup errors shared by every storage implementation
var (
	ErrUserNotFound   = fmt.Errorf("%w: user", types.ErrNotFound)
	ErrCourseNotFound = fmt.Errorf("%w: course", types.ErrNotFound)
)
