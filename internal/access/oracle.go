package access

import (
	"context"
	"errors"
	"log/slog"

	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

var _ interfaces.AccessOracle = (*Oracle)(nil)

// Oracle answers room access questions against live storage. It never
// consults the enrollment snapshot carried by an identity.
type Oracle struct {
	courses interfaces.CourseStore
	logger  *slog.Logger
}

// NewOracle creates an oracle over courses.
func NewOracle(courses interfaces.CourseStore, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{courses: courses, logger: logger}
}

// CanAccessRoom is true iff identity is the course's instructor of record or
// is enrolled in it now. Lookup failures and unknown courses yield false.
func (o *Oracle) CanAccessRoom(ctx context.Context, identity *types.Identity, courseID string) bool {
	allowed, err := o.Check(ctx, identity, courseID)
	if err != nil && !isDenial(err) {
		o.logger.Warn("room access check failed", "course_id", courseID, "error", err)
	}
	return allowed
}

// Check is CanAccessRoom with the reason for a denial. The error wraps
// types.ErrNotFound for an unknown course and types.ErrAuthorization when the
// identity has no relationship to it.
func (o *Oracle) Check(ctx context.Context, identity *types.Identity, courseID string) (bool, error) {
	if identity == nil || identity.ID == "" {
		return false, ErrNoIdentity
	}
	if !types.IsValidID(courseID) {
		return false, types.ErrInvalidID
	}

	course, err := o.courses.GetCourse(ctx, courseID)
	if err != nil {
		return false, err
	}
	if course.InstructorID == identity.ID {
		return true, nil
	}

	enrolled, err := o.courses.IsEnrolled(ctx, identity.ID, courseID)
	if err != nil {
		return false, err
	}
	if !enrolled {
		return false, ErrNotMember
	}
	return true, nil
}

func isDenial(err error) bool {
	return errors.Is(err, types.ErrNotFound) ||
		errors.Is(err, types.ErrAuthorization) ||
		errors.Is(err, types.ErrValidation)
}
