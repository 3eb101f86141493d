package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestIsValidID(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		wantOk bool
	}{
		{"uuid", "0b6f3a4e-8d1c-4b7a-9a55-2f1e0c3d4b5a", true},
		{"slug", "course_go-101", true},
		{"64 chars", strings.Repeat("a", 64), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 65), false},
		{"special chars", "course@1", false},
		{"spaces", "course 1", false},
		{"path traversal", "../etc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidID(tt.id); got != tt.wantOk {
				t.Errorf("IsValidID(%q) = %v, want %v", tt.id, got, tt.wantOk)
			}
		})
	}
}

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"plain", "hello", "hello", nil},
		{"trimmed", "  hello \n", "hello", nil},
		{"blank", "   ", "", ErrEmptyMessage},
		{"empty", "", "", ErrEmptyMessage},
		{"max length", strings.Repeat("é", MaxMessageLength), strings.Repeat("é", MaxMessageLength), nil},
		{"too long", strings.Repeat("x", MaxMessageLength+1), "", ErrMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMessage(tt.body)
			if err != tt.wantErr {
				t.Fatalf("NormalizeMessage() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationErrorsWrapKind(t *testing.T) {
	for _, err := range []error{ErrInvalidID, ErrEmptyMessage, ErrMessageTooLong, ErrMalformedEvent, ErrUnknownEventType} {
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%v should wrap ErrValidation", err)
		}
	}
}

func TestDecodeClientEvent(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    ClientEvent
		wantErr error
	}{
		{
			name:  "join",
			frame: `{"type":"joinRoom","courseId":"c1"}`,
			want:  JoinRoomEvent{CourseID: "c1"},
		},
		{
			name:  "send",
			frame: `{"type":"sendMessage","courseId":"c1","message":"hi"}`,
			want:  SendMessageEvent{CourseID: "c1", Message: "hi"},
		},
		{
			name:  "leave",
			frame: `{"type":"leaveRoom","courseId":"c1"}`,
			want:  LeaveRoomEvent{CourseID: "c1"},
		},
		{
			name:  "authenticate",
			frame: `{"type":"authenticate","token":"abc"}`,
			want:  AuthenticateEvent{Token: "abc"},
		},
		{
			name:    "unknown type",
			frame:   `{"type":"typing","courseId":"c1"}`,
			wantErr: ErrUnknownEventType,
		},
		{
			name:    "not json",
			frame:   `joinRoom c1`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "wrong field type",
			frame:   `{"type":"joinRoom","courseId":42}`,
			wantErr: ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClientEvent([]byte(tt.frame))
			if err != tt.wantErr {
				t.Fatalf("DecodeClientEvent() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got != tt.want {
				t.Errorf("DecodeClientEvent() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestServerEventShapes(t *testing.T) {
	data, err := json.Marshal(NewErrorEvent(CodeNotJoined, "join before sending", "c1"))
	if err != nil {
		t.Fatalf("Failed to marshal error event: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal error event: %v", err)
	}
	if decoded["type"] != EventError || decoded["code"] != CodeNotJoined || decoded["courseId"] != "c1" {
		t.Errorf("Unexpected error event payload: %s", data)
	}

	msg := &ChatMessage{Seq: 7, ID: "m1", CourseID: "c1", Sender: Sender{ID: "u1", FullName: "Ada"}, Message: "hi"}
	data, err = json.Marshal(NewMessageBroadcast(msg))
	if err != nil {
		t.Fatalf("Failed to marshal message event: %v", err)
	}
	if strings.Contains(string(data), "seq") || strings.Contains(string(data), "isMine") {
		t.Errorf("Broadcast should not expose seq or isMine: %s", data)
	}
}
