// Package seed loads users, courses, lessons and enrollments from a YAML
// fixture into storage.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"nexa/internal/auth"
	"nexa/pkg/types"
)

// Fixture is the seed file layout. Courses and enrollments refer to users by
// email so fixtures stay readable.
type Fixture struct {
	Users   []UserFixture   `yaml:"users"`
	Courses []CourseFixture `yaml:"courses"`
}

type UserFixture struct {
	ID        string `yaml:"id"`
	FullName  string `yaml:"fullName"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	Role      string `yaml:"role"`
	AvatarURL string `yaml:"avatarUrl"`
}

type CourseFixture struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	Category    string          `yaml:"category"`
	Instructor  string          `yaml:"instructor"`
	Students    []string        `yaml:"students"`
	Lessons     []LessonFixture `yaml:"lessons"`
}

type LessonFixture struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	WeekNumber  int    `yaml:"weekNumber"`
}

// Store is the storage the seeder writes to.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	GetCourse(ctx context.Context, courseID string) (*types.Course, error)
	CreateUser(ctx context.Context, user *types.User) error
	CreateCourse(ctx context.Context, course *types.Course) error
	Enroll(ctx context.Context, userID, courseID string) error
}

// Result counts what a run created.
type Result struct {
	Users       int
	Courses     int
	Enrollments int
}

// Parse decodes a fixture and rejects unknown keys.
func Parse(r io.Reader) (*Fixture, error) {
	var fixture Fixture
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixture); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &fixture, nil
}

// LoadFile parses the fixture at path.
func LoadFile(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Seed writes the fixture. Users whose email exists and courses whose id
// exists are kept as they are, so seeding twice is harmless.
func Seed(ctx context.Context, store Store, fixture *Fixture, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var result Result
	userIDs := make(map[string]string, len(fixture.Users)) // email -> id

	for _, u := range fixture.Users {
		email := types.NormalizeEmail(u.Email)
		if existing, err := store.GetUserByEmail(ctx, email); err == nil {
			userIDs[email] = existing.ID
			continue
		} else if !errors.Is(err, types.ErrNotFound) {
			return result, err
		}

		if u.Role != types.RoleStudent && u.Role != types.RoleTutor {
			return result, fmt.Errorf("user %s: unknown role %q", email, u.Role)
		}
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return result, fmt.Errorf("user %s: %w", email, err)
		}
		user := &types.User{
			ID:           u.ID,
			FullName:     u.FullName,
			Email:        email,
			PasswordHash: hash,
			Role:         u.Role,
			AvatarURL:    u.AvatarURL,
		}
		if err := store.CreateUser(ctx, user); err != nil {
			return result, fmt.Errorf("user %s: %w", email, err)
		}
		userIDs[email] = user.ID
		result.Users++
	}

	for _, c := range fixture.Courses {
		instructorID, ok := userIDs[types.NormalizeEmail(c.Instructor)]
		if !ok {
			return result, fmt.Errorf("course %q: unknown instructor %s", c.Title, c.Instructor)
		}

		courseID := c.ID
		exists := false
		if courseID != "" {
			_, err := store.GetCourse(ctx, courseID)
			switch {
			case err == nil:
				exists = true
			case !errors.Is(err, types.ErrNotFound):
				return result, err
			}
		}

		if !exists {
			course := &types.Course{
				ID:           courseID,
				Title:        c.Title,
				Description:  c.Description,
				Category:     c.Category,
				InstructorID: instructorID,
			}
			for i, l := range c.Lessons {
				course.Lessons = append(course.Lessons, types.Lesson{
					Title:       l.Title,
					Description: l.Description,
					WeekNumber:  l.WeekNumber,
					Position:    i + 1,
				})
			}
			if err := store.CreateCourse(ctx, course); err != nil {
				return result, fmt.Errorf("course %q: %w", c.Title, err)
			}
			courseID = course.ID
			result.Courses++
		}

		for _, email := range c.Students {
			studentID, ok := userIDs[types.NormalizeEmail(email)]
			if !ok {
				return result, fmt.Errorf("course %q: unknown student %s", c.Title, email)
			}
			if err := store.Enroll(ctx, studentID, courseID); err != nil {
				return result, fmt.Errorf("course %q: enroll %s: %w", c.Title, email, err)
			}
			result.Enrollments++
		}
	}

	logger.Info("seed complete", "users", result.Users, "courses", result.Courses, "enrollments", result.Enrollments)
	return result, nil
}
