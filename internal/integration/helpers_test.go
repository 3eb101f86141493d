package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nexa/internal/app"
	"nexa/internal/config"
	"nexa/internal/seed"
	"nexa/pkg/types"
)

const (
	courseID      = "course-go"
	otherCourseID = "course-rust"
	password      = "password123"

	instructorEmail = "ada@nexa.test"
	studentEmail    = "ben@nexa.test"
	outsiderEmail   = "dana@nexa.test"

	readTimeout = 5 * time.Second
)

// classroom: Ada teaches course-go, Ben is enrolled, Dana only takes course-rust.
const classroom = `
users:
  - {id: tutor-ada, fullName: Ada Lovelace, email: ada@nexa.test, password: password123, role: tutor, avatarUrl: /img/ada.png}
  - {id: student-ben, fullName: Ben Okafor, email: ben@nexa.test, password: password123, role: student}
  - {id: student-dana, fullName: Dana Silva, email: dana@nexa.test, password: password123, role: student}
courses:
  - id: course-go
    title: Go Fundamentals
    instructor: ada@nexa.test
    students: [ben@nexa.test]
    lessons:
      - {title: Syntax, weekNumber: 1}
  - id: course-rust
    title: Rust Fundamentals
    instructor: ada@nexa.test
    students: [dana@nexa.test]
`

type testServer struct {
	t       *testing.T
	app     *app.Application
	baseURL string
	wsURL   string
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// startServer runs a seeded application on a loopback port and stops it
// when the test ends.
func startServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "nexa.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.Auth.JWTSecret = "integration-secret"
	cfg.Bot.Provider = config.ProviderNone
	cfg.WebSocket.AuthTimeout = config.Duration{Duration: 300 * time.Millisecond}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	application, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}

	fixture, err := seed.Parse(strings.NewReader(classroom))
	if err != nil {
		t.Fatalf("Failed to parse fixture: %v", err)
	}
	if _, err := seed.Seed(ctx, application.Database(), fixture, logger); err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}

	if err := application.Start(ctx); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			t.Errorf("Failed to stop application: %v", err)
		}
	})

	addr := application.GetAddr()
	return &testServer{
		t:       t,
		app:     application,
		baseURL: "http://" + addr,
		wsURL:   "ws://" + addr + "/ws",
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// do sends a JSON request and decodes the response envelope.
func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.baseURL+path, reader)
	if err != nil {
		s.t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		s.t.Fatalf("Failed to decode %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func (s *testServer) login(email string) string {
	s.t.Helper()
	status, env := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusOK {
		s.t.Fatalf("Login as %s returned %d: %s", email, status, env.Error)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		s.t.Fatalf("Login response carried no token: %s", env.Data)
	}
	return data.Token
}

// history returns the course history as the token holder sees it, newest first.
func (s *testServer) history(token, course string) []*types.ChatMessage {
	s.t.Helper()
	status, env := s.do(http.MethodGet, "/api/chat/"+course+"/history", token, nil)
	if status != http.StatusOK {
		s.t.Fatalf("History returned %d: %s", status, env.Error)
	}
	var messages []*types.ChatMessage
	if err := json.Unmarshal(env.Data, &messages); err != nil {
		s.t.Fatalf("Failed to decode history: %v", err)
	}
	return messages
}

// registryStats reads the room registry counters from the health endpoint.
func (s *testServer) registryStats() map[string]int {
	s.t.Helper()
	resp, err := http.Get(s.baseURL + "/health")
	if err != nil {
		s.t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Realtime struct {
			Registry map[string]int `json:"registry"`
		} `json:"realtime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		s.t.Fatalf("Failed to decode health: %v", err)
	}
	return body.Realtime.Registry
}

func (s *testServer) waitForStats(key string, want int) {
	s.t.Helper()
	deadline := time.Now().Add(readTimeout)
	for {
		got := s.registryStats()[key]
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			s.t.Fatalf("Registry %s = %d, want %d", key, got, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// frame is the union of every server to client event.
type frame struct {
	Type     string             `json:"type"`
	Code     string             `json:"code"`
	Error    string             `json:"error"`
	CourseID string             `json:"courseId"`
	Message  *types.ChatMessage `json:"message"`
	User     *types.Identity    `json:"user"`
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
	user *types.Identity
}

// dial connects with the token on the upgrade request and waits for the
// authenticated event.
func (s *testServer) dial(token string) *client {
	s.t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		s.t.Fatalf("Dial failed (status %d): %v", status, err)
	}
	c := &client{t: s.t, conn: conn}
	s.t.Cleanup(func() { _ = conn.Close() })

	f := c.expect(types.EventAuthenticated)
	c.user = f.User
	return c
}

func (c *client) send(v interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("Write failed: %v", err)
	}
}

func (c *client) next() frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	var f frame
	if err := c.conn.ReadJSON(&f); err != nil {
		c.t.Fatalf("Read failed: %v", err)
	}
	return f
}

func (c *client) expect(eventType string) frame {
	c.t.Helper()
	f := c.next()
	if f.Type != eventType {
		c.t.Fatalf("Expected %s, got %+v", eventType, f)
	}
	return f
}

func (c *client) expectError(code string) frame {
	c.t.Helper()
	f := c.expect(types.EventError)
	if f.Code != code {
		c.t.Fatalf("Expected error code %s, got %s (%s)", code, f.Code, f.Error)
	}
	return f
}

func (c *client) join(course string) {
	c.t.Helper()
	c.send(joinFrame(course))
	if f := c.expect(types.EventRoomJoined); f.CourseID != course {
		c.t.Fatalf("Joined %s, expected %s", f.CourseID, course)
	}
}

// expectSilence asserts nothing arrives for d. The connection cannot be
// read from afterwards.
func (c *client) expectSilence(d time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(d))
	var f frame
	err := c.conn.ReadJSON(&f)
	if err == nil {
		c.t.Fatalf("Expected no events, got %+v", f)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		c.t.Fatalf("Expected a read timeout, got %v", err)
	}
}

func joinFrame(course string) map[string]string {
	return map[string]string{"type": types.EventJoinRoom, "courseId": course}
}

func leaveFrame(course string) map[string]string {
	return map[string]string{"type": types.EventLeaveRoom, "courseId": course}
}

func sendFrame(course, message string) map[string]string {
	return map[string]string{"type": types.EventSendMessage, "courseId": course, "message": message}
}

func itoa(i int) string { return strconv.Itoa(i) }
