package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

const userColumns = `id, full_name, email, password_hash, role, avatar_url, created_at`

func scanUser(row *sql.Row) (*types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.AvatarURL,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID
func (m *Manager) GetUserByID(ctx context.Context, userID string) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (m *Manager) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, types.NormalizeEmail(email))
	return scanUser(row)
}

// GetEnrolledCourseIDs returns the user's courses, oldest enrollment first.
func (m *Manager) GetEnrolledCourseIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT course_id FROM enrollments WHERE user_id = ? ORDER BY enrolled_at ASC, course_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	courseIDs := []string{}
	for rows.Next() {
		var courseID string
		if err := rows.Scan(&courseID); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment row: %w", err)
		}
		courseIDs = append(courseIDs, courseID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollment rows: %w", err)
	}
	return courseIDs, nil
}

// GetCourse retrieves a course without its lessons
func (m *Manager) GetCourse(ctx context.Context, courseID string) (*types.Course, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, instructor_id, enrollments, created_at
		FROM courses
		WHERE id = ?
	`, courseID)

	var course types.Course
	err := row.Scan(
		&course.ID,
		&course.Title,
		&course.Description,
		&course.Category,
		&course.InstructorID,
		&course.Enrollments,
		&course.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query course: %w", err)
	}
	return &course, nil
}

// GetCourseWithLessons retrieves a course and its lessons ordered by position
func (m *Manager) GetCourseWithLessons(ctx context.Context, courseID string) (*types.Course, error) {
	course, err := m.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, course_id, title, description, week_number, position
		FROM lessons
		WHERE course_id = ?
		ORDER BY position ASC, id ASC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var lesson types.Lesson
		if err := rows.Scan(
			&lesson.ID,
			&lesson.CourseID,
			&lesson.Title,
			&lesson.Description,
			&lesson.WeekNumber,
			&lesson.Position,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lesson row: %w", err)
		}
		course.Lessons = append(course.Lessons, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lesson rows: %w", err)
	}
	return course, nil
}

// IsEnrolled reports whether userID is currently enrolled in courseID
func (m *Manager) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE user_id = ? AND course_id = ?`,
		userID, courseID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query enrollment: %w", err)
	}
	return n > 0, nil
}

// CreateUser inserts a user. Missing ID and CreatedAt are filled in.
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = types.NormalizeEmail(user.Email)

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (`+userColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			user.ID,
			user.FullName,
			user.Email,
			user.PasswordHash,
			user.Role,
			user.AvatarURL,
			user.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	}, nil)
}

// CreateCourse inserts a course together with its lessons in one transaction.
func (m *Manager) CreateCourse(ctx context.Context, course *types.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	for i := range course.Lessons {
		if course.Lessons[i].ID == "" {
			course.Lessons[i].ID = uuid.NewString()
		}
		course.Lessons[i].CourseID = course.ID
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO courses (id, title, description, category, instructor_id, enrollments, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?)
		`,
			course.ID,
			course.Title,
			course.Description,
			course.Category,
			course.InstructorID,
			course.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert course: %w", err)
		}

		for _, lesson := range course.Lessons {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO lessons (id, course_id, title, description, week_number, position)
				VALUES (?, ?, ?, ?, ?, ?)
			`,
				lesson.ID,
				lesson.CourseID,
				lesson.Title,
				lesson.Description,
				lesson.WeekNumber,
				lesson.Position,
			)
			if err != nil {
				return fmt.Errorf("failed to insert lesson %s: %w", lesson.ID, err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit course creation: %w", err)
		}
		return nil
	}, nil)
}

// Enroll adds userID to courseID and bumps the enrollment count.
// Enrolling twice is a no-op.
func (m *Manager) Enroll(ctx context.Context, userID, courseID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO enrollments (user_id, course_id, enrolled_at) VALUES (?, ?, ?)`,
			userID, courseID, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE courses SET enrollments = enrollments + 1 WHERE id = ?`, courseID); err != nil {
				return fmt.Errorf("failed to update enrollment count: %w", err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit enrollment: %w", err)
		}
		return nil
	}, nil)
}

// Unenroll removes userID from courseID. Removing a missing enrollment is a no-op.
func (m *Manager) Unenroll(ctx context.Context, userID, courseID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`DELETE FROM enrollments WHERE user_id = ? AND course_id = ?`,
			userID, courseID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete enrollment: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE courses SET enrollments = MAX(enrollments - 1, 0) WHERE id = ?`, courseID); err != nil {
				return fmt.Errorf("failed to update enrollment count: %w", err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit unenrollment: %w", err)
		}
		return nil
	}, nil)
}
