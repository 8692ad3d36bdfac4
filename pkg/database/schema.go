package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that the migrated schema matches what the store
// expects. It is run at startup after migrations.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

var requiredTables = map[string]map[string]string{
	"sessions": {
		"id":              "TEXT",
		"course_name":     "TEXT",
		"created_by_id":   "TEXT",
		"created_by_name": "TEXT",
		"status":          "TEXT",
		"start_at":        "INTEGER",
		"end_at":          "INTEGER",
	},
	"questions": {
		"id":          "TEXT",
		"session_id":  "TEXT",
		"text":        "TEXT",
		"dedupe_key":  "TEXT",
		"author_id":   "TEXT",
		"author_name": "TEXT",
		"status":      "TEXT",
		"important":   "INTEGER",
		"created_at":  "INTEGER",
		"updated_at":  "INTEGER",
	},
	"replies": {
		"id":              "TEXT",
		"question_id":     "TEXT",
		"parent_reply_id": "TEXT",
		"author_id":       "TEXT",
		"text":            "TEXT",
		"created_at":      "INTEGER",
	},
	"update_records": {
		"session_id":   "TEXT",
		"user_id":      "TEXT",
		"last_seen_at": "INTEGER",
	},
	"update_entries": {
		"id":          "TEXT",
		"session_id":  "TEXT",
		"user_id":     "TEXT",
		"question_id": "TEXT",
		"update_type": "TEXT",
		"updated_at":  "INTEGER",
	},
	"participants": {
		"id":   "TEXT",
		"name": "TEXT",
		"role": "TEXT",
	},
	"course_memberships": {
		"participant_id": "TEXT",
		"course_name":    "TEXT",
		"enrolled":       "INTEGER",
		"is_ta":          "INTEGER",
		"is_instructor":  "INTEGER",
	},
}

var requiredIndexes = []string{
	"idx_sessions_live_course",
	"idx_sessions_course_start",
	"idx_questions_session_dedupe",
	"idx_questions_session_created",
	"idx_replies_question_created",
	"idx_update_entries_pair_time",
	"idx_course_memberships_course",
}

// Validate runs every check.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for table := range requiredTables {
		exists, err := v.objectExists("table", table)
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
	for table, columns := range requiredTables {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateIndexes verifies that the uniqueness and lookup indexes exist.
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
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

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}
	return nil
}
