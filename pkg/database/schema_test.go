package database

import (
	"strings"
	"testing"
)

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	if err := validator.ValidateTablesExist(); err == nil {
		t.Error("ValidateTablesExist should fail on empty database")
	}
	if err := validator.ValidateIndexes(); err == nil {
		t.Error("ValidateIndexes should fail on empty database")
	}
}

func TestSchemaValidator_DetectsTypeMismatch(t *testing.T) {
	db := openTestDB(t)
	if _, err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	// Rebuild lessons with a wrong column type
	stmts := []string{
		`DROP TABLE lessons`,
		`CREATE TABLE lessons (id TEXT PRIMARY KEY, course_id TEXT, title TEXT, week_number TEXT, position INTEGER)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to alter schema: %v", err)
		}
	}

	err := NewSchemaValidator(db).ValidateTableStructure()
	if err == nil {
		t.Fatal("Expected type mismatch to be detected")
	}
	if !strings.Contains(err.Error(), "week_number") {
		t.Errorf("Expected error to name week_number, got %v", err)
	}
}

func TestSchema_ConstraintsEnforced(t *testing.T) {
	db := openTestDB(t)
	if _, err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO users (id, full_name, email, password_hash, role) VALUES ('u1', 'Ada', 'ada@example.com', 'x', 'admin')`)
	if err == nil {
		t.Error("Role check constraint should reject unknown roles")
	}

	_, err = db.Exec(`INSERT INTO chat_messages (id, course_id, sender_id, message, created_at) VALUES ('m1', 'missing', 'missing', 'hi', CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Error("Foreign keys should reject messages for unknown courses")
	}

	_, err = db.Exec(`INSERT INTO users (id, full_name, email, password_hash, role) VALUES ('u1', 'Ada', 'ada@example.com', 'x', 'tutor')`)
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	_, err = db.Exec(`INSERT INTO users (id, full_name, email, password_hash, role) VALUES ('u2', 'Ada', 'ada@example.com', 'x', 'student')`)
	if err == nil {
		t.Error("Email must be unique")
	}
}
