package database

import (
	"fmt"

	"nexa/pkg/types"
)

// Writer lifecycle errors
var (
	ErrManagerClosed = fmt.Errorf("%w: database manager is closed", types.ErrPersistence)
	ErrWriteTimeout  = fmt.Errorf("%w: write operation timeout", types.ErrPersistence)
)
