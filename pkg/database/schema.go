package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// requiredColumns lists, per table, the columns the storage layer reads and
// writes together with their declared SQLite types.
var requiredColumns = map[string]map[string]string{
	"users": {
		"id":            "TEXT",
		"full_name":     "TEXT",
		"email":         "TEXT",
		"password_hash": "TEXT",
		"role":          "TEXT",
		"avatar_url":    "TEXT",
		"created_at":    "DATETIME",
	},
	"courses": {
		"id":            "TEXT",
		"title":         "TEXT",
		"description":   "TEXT",
		"category":      "TEXT",
		"instructor_id": "TEXT",
		"enrollments":   "INTEGER",
		"created_at":    "DATETIME",
	},
	"lessons": {
		"id":          "TEXT",
		"course_id":   "TEXT",
		"title":       "TEXT",
		"week_number": "INTEGER",
		"position":    "INTEGER",
	},
	"enrollments": {
		"user_id":     "TEXT",
		"course_id":   "TEXT",
		"enrolled_at": "DATETIME",
	},
	"chat_messages": {
		"seq":        "INTEGER",
		"id":         "TEXT",
		"course_id":  "TEXT",
		"sender_id":  "TEXT",
		"message":    "TEXT",
		"created_at": "DATETIME",
	},
	"chatbot_messages": {
		"seq":        "INTEGER",
		"id":         "TEXT",
		"course_id":  "TEXT",
		"user_id":    "TEXT",
		"role":       "TEXT",
		"message":    "TEXT",
		"created_at": "DATETIME",
	},
}

var requiredIndexes = []string{
	"idx_courses_instructor",
	"idx_lessons_course_position",
	"idx_enrollments_course",
	"idx_chat_messages_course_time",
	"idx_chatbot_messages_course_user",
}

// SchemaValidator checks a live database against the expected schema.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	tables := append(sortedKeys(requiredColumns), "schema_migrations")
	for _, table := range tables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateTableStructure verifies column names and declared types.
func (v *SchemaValidator) ValidateTableStructure() error {
	for _, table := range sortedKeys(requiredColumns) {
		if err := v.validateColumns(table, requiredColumns[table]); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateIndexes verifies that the lookup indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range requiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, column := range sortedKeys(expected) {
		foundType, ok := found[column]
		if !ok {
			return fmt.Errorf("column %s not found", column)
		}
		if foundType != expected[column] {
			return fmt.Errorf("column %s has type %s, expected %s", column, foundType, expected[column])
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
