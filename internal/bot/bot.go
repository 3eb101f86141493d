// Package bot answers course questions through a text generator, grounded
// on the course outline and the asker's earlier turns.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexa/pkg/ai"
	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

// FallbackReply is returned whenever no generated reply is available.
const FallbackReply = "Sorry, I couldn't process that request."

const defaultHistoryLimit = 10

// Access decides whether an identity may use a course's chatbot.
type Access interface {
	Check(ctx context.Context, identity *types.Identity, courseID string) (bool, error)
}

// Service runs one chatbot exchange at a time per request.
type Service struct {
	access       Access
	courses      interfaces.CourseStore
	store        interfaces.BotStore
	generator    ai.TextGenerator
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates a chatbot service. A nil generator always yields the
// fallback reply.
func NewService(access Access, courses interfaces.CourseStore, store interfaces.BotStore, generator ai.TextGenerator, historyLimit int, logger *slog.Logger) *Service {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		access:       access,
		courses:      courses,
		store:        store,
		generator:    generator,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// Reply answers message from identity in courseID.
//
// Validation, unknown courses and access denials fail the request. Once the
// request is accepted it always returns a reply: a generation failure yields
// FallbackReply, and failing to load or store the conversation is only
// logged.
func (s *Service) Reply(ctx context.Context, identity *types.Identity, courseID, message string) (string, error) {
	message, err := types.NormalizeMessage(message)
	if err != nil {
		return "", err
	}
	if _, err := s.access.Check(ctx, identity, courseID); err != nil {
		return "", err
	}

	course, err := s.courses.GetCourseWithLessons(ctx, courseID)
	if err != nil {
		return "", err
	}

	logger := s.logger.With("user_id", identity.ID, "course_id", courseID)

	history, err := s.store.GetBotHistory(ctx, courseID, identity.ID, s.historyLimit)
	if err != nil {
		logger.Warn("failed to load bot history", "error", err)
		history = nil
	}

	reply := s.generate(ctx, logger, course, history, message)

	// Stored even when the reply is the fallback, so the history stays complete
	now := s.now().UTC()
	turns := []*types.BotMessage{
		{ID: uuid.NewString(), CourseID: courseID, UserID: identity.ID, Role: types.BotRoleUser, Message: message, CreatedAt: now},
		{ID: uuid.NewString(), CourseID: courseID, UserID: identity.ID, Role: types.BotRoleModel, Message: reply, CreatedAt: now},
	}
	if err := s.store.StoreBotMessages(ctx, turns...); err != nil {
		logger.Error("failed to store bot conversation", "error", err)
	}

	return reply, nil
}

func (s *Service) generate(ctx context.Context, logger *slog.Logger, course *types.Course, history []*types.BotMessage, message string) string {
	if s.generator == nil {
		return FallbackReply
	}

	turns := make([]ai.Turn, 0, len(history)+1)
	for _, h := range history {
		turns = append(turns, ai.Turn{Role: h.Role, Text: h.Message})
	}
	turns = append(turns, ai.Turn{
		Role: ai.RoleUser,
		Text: CourseContext(course) + "\n\n---\n\n" + message,
	})

	text, err := s.generator.GenerateText(ctx, SystemPrompt(course), turns)
	if err != nil {
		logger.Warn("bot generation failed", "error", err)
		return FallbackReply
	}
	return text
}

// SystemPrompt instructs the model to stay within the course material.
func SystemPrompt(course *types.Course) string {
	return fmt.Sprintf("You are Nexi, a helpful AI tutor for the Nexa Learning platform. "+
		"You are assisting a user (could be a student or the course instructor) within the '%s' course. "+
		"Answer questions based ONLY on the provided course context and conversation history. "+
		"Be concise and encouraging. Do not invent information. "+
		"If the answer isn't in the context, say you don't have that information.", course.Title)
}

// CourseContext renders the course description and lesson outline.
func CourseContext(course *types.Course) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Course Context for %q:\n", course.Title)
	fmt.Fprintf(&b, "Description: %s\n", course.Description)
	b.WriteString("Lessons:\n")
	for _, lesson := range course.Lessons {
		description := lesson.Description
		if description == "" {
			description = "No description available."
		}
		fmt.Fprintf(&b, "- %s: %s\n", lesson.Title, description)
	}
	return b.String()
}
