package types

import (
	"time"
)

// User roles
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
)

// Bot conversation roles
const (
	BotRoleUser  = "user"
	BotRoleModel = "model"
)

// User is a registered platform account.
// PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	AvatarURL    string    `json:"avatarUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the principal bound to a request or realtime connection
// after successful credential verification.
// EnrolledCourseIDs is a snapshot taken at verification time and is never
// used for authorization decisions.
type Identity struct {
	ID                string   `json:"id"`
	FullName          string   `json:"fullName"`
	AvatarURL         string   `json:"avatarUrl"`
	Role              string   `json:"role"`
	EnrolledCourseIDs []string `json:"enrolledCourses"`
}

// NewIdentity builds an identity from a stored user and its enrollments.
func NewIdentity(user *User, enrolledCourseIDs []string) *Identity {
	return &Identity{
		ID:                user.ID,
		FullName:          user.FullName,
		AvatarURL:         user.AvatarURL,
		Role:              user.Role,
		EnrolledCourseIDs: enrolledCourseIDs,
	}
}

// Course is owned by its instructor. Lessons are ordered by position.
type Course struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	InstructorID string    `json:"instructor"`
	Enrollments  int       `json:"enrollments"`
	Lessons      []Lesson  `json:"lessons,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Lesson belongs to exactly one course.
type Lesson struct {
	ID          string `json:"id"`
	CourseID    string `json:"courseId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	WeekNumber  int    `json:"weekNumber,omitempty"`
	Position    int    `json:"position"`
}

// Sender is the display data attached to a chat message.
type Sender struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}

// ChatMessage is an immutable, append-only message in a course room.
// Seq is the storage commit order and is only meaningful within one database.
type ChatMessage struct {
	Seq       int64     `json:"-"`
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	Sender    Sender    `json:"sender"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	IsMine    *bool     `json:"isMine,omitempty"`
}

// BotMessage is one turn of a user's conversation with the course chatbot.
type BotMessage struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
