// Package ai holds the text-generation clients behind the course chatbot.
package ai

import (
	"context"
	"errors"
)

// Conversation roles
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrGeneration wraps every failure to obtain generated text.
var ErrGeneration = errors.New("text generation failed")

// Turn is one message of a conversation, oldest first.
type Turn struct {
	Role string
	Text string
}

// TextGenerator generates the next model turn of a conversation.
// Gemini and OpenAI-compatible providers implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt string, turns []Turn) (string, error)
}
