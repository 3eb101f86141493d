package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nexa/pkg/database"
	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

// setupTestDB returns a migrated manager seeded with one tutor owning
// course-1, one enrolled student and one outsider.
func setupTestDB(t *testing.T) *Manager {
	t.Helper()
	config := database.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(config, WithRetryDelay(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() {
		if err := manager.Close(); err != nil {
			t.Logf("Failed to close manager: %v", err)
		}
	})

	if _, err := database.NewMigrationManager(manager.GetDB()).ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	ctx := context.Background()
	users := []*types.User{
		{ID: "tutor-1", FullName: "Tina Tutor", Email: "Tina@Example.com", PasswordHash: "x", Role: types.RoleTutor, AvatarURL: "/t.png"},
		{ID: "student-1", FullName: "Sam Student", Email: "sam@example.com", PasswordHash: "x", Role: types.RoleStudent},
		{ID: "student-2", FullName: "Olive Outsider", Email: "olive@example.com", PasswordHash: "x", Role: types.RoleStudent},
	}
	for _, u := range users {
		if err := manager.CreateUser(ctx, u); err != nil {
			t.Fatalf("Failed to create user %s: %v", u.ID, err)
		}
	}
	course := &types.Course{
		ID:           "course-1",
		Title:        "Go Basics",
		InstructorID: "tutor-1",
		Lessons: []types.Lesson{
			{Title: "Concurrency", Position: 2},
			{Title: "Syntax", Position: 1},
		},
	}
	if err := manager.CreateCourse(ctx, course); err != nil {
		t.Fatalf("Failed to create course: %v", err)
	}
	if err := manager.Enroll(ctx, "student-1", "course-1"); err != nil {
		t.Fatalf("Failed to enroll: %v", err)
	}
	return manager
}

func TestManager_UserLookups(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	user, err := manager.GetUserByEmail(ctx, "  TINA@example.COM ")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if user.ID != "tutor-1" || user.AvatarURL != "/t.png" {
		t.Errorf("Unexpected user: %+v", user)
	}

	if _, err := manager.GetUserByID(ctx, "ghost"); !errors.Is(err, interfaces.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
	if _, err := manager.GetUserByEmail(ctx, "ghost@example.com"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestManager_CourseLookups(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	course, err := manager.GetCourseWithLessons(ctx, "course-1")
	if err != nil {
		t.Fatalf("GetCourseWithLessons failed: %v", err)
	}
	if course.InstructorID != "tutor-1" || course.Enrollments != 1 {
		t.Errorf("Unexpected course: %+v", course)
	}
	if len(course.Lessons) != 2 || course.Lessons[0].Title != "Syntax" {
		t.Errorf("Lessons should be ordered by position, got %+v", course.Lessons)
	}

	if _, err := manager.GetCourse(ctx, "missing"); !errors.Is(err, interfaces.ErrCourseNotFound) {
		t.Errorf("Expected ErrCourseNotFound, got %v", err)
	}
}

func TestManager_EnrollmentLifecycle(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	// Enrolling twice keeps one row and one count
	if err := manager.Enroll(ctx, "student-1", "course-1"); err != nil {
		t.Fatalf("Second Enroll failed: %v", err)
	}
	course, _ := manager.GetCourse(ctx, "course-1")
	if course.Enrollments != 1 {
		t.Errorf("Expected 1 enrollment after duplicate enroll, got %d", course.Enrollments)
	}

	ids, err := manager.GetEnrolledCourseIDs(ctx, "student-1")
	if err != nil || len(ids) != 1 || ids[0] != "course-1" {
		t.Fatalf("GetEnrolledCourseIDs = %v, %v", ids, err)
	}

	if err := manager.Unenroll(ctx, "student-1", "course-1"); err != nil {
		t.Fatalf("Unenroll failed: %v", err)
	}
	enrolled, err := manager.IsEnrolled(ctx, "student-1", "course-1")
	if err != nil || enrolled {
		t.Errorf("IsEnrolled after unenroll = %v, %v", enrolled, err)
	}
	if err := manager.Unenroll(ctx, "student-1", "course-1"); err != nil {
		t.Errorf("Unenrolling twice should be a no-op, got %v", err)
	}

	ids, _ = manager.GetEnrolledCourseIDs(ctx, "student-2")
	if ids == nil || len(ids) != 0 {
		t.Errorf("Expected empty non-nil slice for outsider, got %#v", ids)
	}
}

func TestManager_StoreChatMessage(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	var committed *types.ChatMessage
	msg := &types.ChatMessage{CourseID: "course-1", Sender: types.Sender{ID: "tutor-1"}, Message: "welcome"}
	err := manager.StoreChatMessage(ctx, msg, func(m *types.ChatMessage) {
		committed = m
		// The record is visible to readers before anyone is told about it
		history, err := manager.GetChatHistory(ctx, "course-1", 0)
		if err != nil || len(history) != 1 || history[0].ID != m.ID {
			t.Errorf("Message not in history at commit time: %v, %v", history, err)
		}
	})
	if err != nil {
		t.Fatalf("StoreChatMessage failed: %v", err)
	}

	if committed != msg {
		t.Fatal("onCommit should receive the stored message")
	}
	if msg.ID == "" || msg.Seq == 0 || msg.CreatedAt.IsZero() {
		t.Errorf("Storage should assign id, seq and timestamp: %+v", msg)
	}
	if msg.Sender.FullName != "Tina Tutor" || msg.Sender.AvatarURL != "/t.png" {
		t.Errorf("Sender display data not filled in: %+v", msg.Sender)
	}
}

func TestManager_StoreChatMessageFailures(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		msg     *types.ChatMessage
		wantErr error
	}{
		{
			name:    "unknown sender",
			msg:     &types.ChatMessage{CourseID: "course-1", Sender: types.Sender{ID: "ghost"}, Message: "hi"},
			wantErr: types.ErrNotFound,
		},
		{
			name:    "unknown course",
			msg:     &types.ChatMessage{CourseID: "missing", Sender: types.Sender{ID: "tutor-1"}, Message: "hi"},
			wantErr: types.ErrPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			err := manager.StoreChatMessage(ctx, tt.msg, func(*types.ChatMessage) { called = true })
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if called {
				t.Error("onCommit must not run for a failed write")
			}
		})
	}

	history, _ := manager.GetChatHistory(ctx, "course-1", 0)
	if len(history) != 0 {
		t.Errorf("Failed writes left %d messages behind", len(history))
	}
}

func TestManager_CommitOrderMatchesCallbackOrder(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	const senders = 4
	const perSender = 25

	var mu sync.Mutex
	var seqs []int64

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			sender := "tutor-1"
			if s%2 == 1 {
				sender = "student-1"
			}
			for i := 0; i < perSender; i++ {
				msg := &types.ChatMessage{CourseID: "course-1", Sender: types.Sender{ID: sender}, Message: fmt.Sprintf("%d-%d", s, i)}
				err := manager.StoreChatMessage(ctx, msg, func(m *types.ChatMessage) {
					mu.Lock()
					seqs = append(seqs, m.Seq)
					mu.Unlock()
				})
				if err != nil {
					t.Errorf("StoreChatMessage failed: %v", err)
				}
			}
		}(s)
	}
	wg.Wait()

	if len(seqs) != senders*perSender {
		t.Fatalf("Expected %d callbacks, got %d", senders*perSender, len(seqs))
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("Callbacks out of commit order at %d: %d after %d", i, seqs[i], seqs[i-1])
		}
	}

	history, err := manager.GetChatHistory(ctx, "course-1", 10)
	if err != nil {
		t.Fatalf("GetChatHistory failed: %v", err)
	}
	if len(history) != 10 {
		t.Fatalf("Expected limit of 10, got %d", len(history))
	}
	if history[0].Seq != seqs[len(seqs)-1] {
		t.Errorf("History should start with the newest message")
	}
}

func TestManager_BotHistory(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := manager.StoreBotMessages(ctx,
			&types.BotMessage{CourseID: "course-1", UserID: "student-1", Role: types.BotRoleUser, Message: fmt.Sprintf("q%d", i)},
			&types.BotMessage{CourseID: "course-1", UserID: "student-1", Role: types.BotRoleModel, Message: fmt.Sprintf("a%d", i)},
		)
		if err != nil {
			t.Fatalf("StoreBotMessages failed: %v", err)
		}
	}
	// Another user's conversation stays separate
	if err := manager.StoreBotMessages(ctx, &types.BotMessage{CourseID: "course-1", UserID: "tutor-1", Role: types.BotRoleUser, Message: "other"}); err != nil {
		t.Fatalf("StoreBotMessages failed: %v", err)
	}

	history, err := manager.GetBotHistory(ctx, "course-1", "student-1", 4)
	if err != nil {
		t.Fatalf("GetBotHistory failed: %v", err)
	}
	want := []string{"q1", "a1", "q2", "a2"}
	if len(history) != len(want) {
		t.Fatalf("Expected %d turns, got %d", len(want), len(history))
	}
	for i, turn := range history {
		if turn.Message != want[i] {
			t.Errorf("Turn %d = %q, want %q", i, turn.Message, want[i])
		}
	}

	err = manager.StoreBotMessages(ctx, &types.BotMessage{CourseID: "course-1", UserID: "student-1", Role: "system", Message: "x"})
	if !errors.Is(err, types.ErrPersistence) {
		t.Errorf("Invalid role should fail as persistence error, got %v", err)
	}
}

func TestManager_HealthAndShutdown(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	if err := manager.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	err := manager.StoreChatMessage(ctx, &types.ChatMessage{CourseID: "course-1", Sender: types.Sender{ID: "tutor-1"}, Message: "late"}, nil)
	if !errors.Is(err, ErrManagerClosed) || !errors.Is(err, types.ErrPersistence) {
		t.Errorf("Expected ErrManagerClosed, got %v", err)
	}
	if err := manager.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck should fail after Close")
	}
}

func TestManager_CancelledContext(t *testing.T) {
	manager := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := manager.StoreChatMessage(ctx, &types.ChatMessage{CourseID: "course-1", Sender: types.Sender{ID: "tutor-1"}, Message: "x"}, nil)
	if !errors.Is(err, types.ErrPersistence) {
		t.Errorf("Expected persistence failure for cancelled context, got %v", err)
	}
}
