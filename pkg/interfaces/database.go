package interfaces

import (
	"context"

	"nexa/pkg/types"
)

// UserStore resolves platform accounts.
type UserStore interface {
	GetUserByID(ctx context.Context, userID string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)

	// GetEnrolledCourseIDs returns the courses the user is enrolled in,
	// oldest enrollment first.
	GetEnrolledCourseIDs(ctx context.Context, userID string) ([]string, error)
}

// CourseStore answers the course questions access control and the chatbot need.
type CourseStore interface {
	// GetCourse returns the course without lessons, or ErrCourseNotFound.
	GetCourse(ctx context.Context, courseID string) (*types.Course, error)

	// GetCourseWithLessons returns the course and its lessons ordered by position.
	GetCourseWithLessons(ctx context.Context, courseID string) (*types.Course, error)

	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

// ChatStore persists course room messages.
type ChatStore interface {
	// StoreChatMessage assigns the message its sequence number and creation
	// time, commits it and then runs onCommit, if non-nil, before the next
	// write is committed. Successive onCommit calls therefore observe
	// messages in commit order. onCommit must not block.
	StoreChatMessage(ctx context.Context, message *types.ChatMessage, onCommit func(*types.ChatMessage)) error

	// GetChatHistory returns up to limit messages of a course, newest first,
	// with sender display data filled in. limit <= 0 means no limit.
	GetChatHistory(ctx context.Context, courseID string, limit int) ([]*types.ChatMessage, error)
}

// BotStore persists the per-user chatbot conversation of a course.
type BotStore interface {
	// StoreBotMessages commits all messages atomically, in order.
	StoreBotMessages(ctx context.Context, messages ...*types.BotMessage) error

	// GetBotHistory returns the last limit turns of userID in courseID,
	// oldest first.
	GetBotHistory(ctx context.Context, courseID, userID string, limit int) ([]*types.BotMessage, error)
}

// DatabaseManager handles all persistence operations
type DatabaseManager interface {
	UserStore
	CourseStore
	ChatStore
	BotStore

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close stops the writer and closes the database. Pending writes fail.
	Close() error
}
