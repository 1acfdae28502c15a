// Package schema holds SQLite DDL that gorm's AutoMigrate cannot express.
package schema

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"reliaudit/internal/errs"
)

// ImmutableStatements returns triggers that abort any UPDATE or DELETE on table.
func ImmutableStatements(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s_no_update
BEFORE UPDATE ON %[1]s
BEGIN
	SELECT RAISE(ABORT, '%[1]s is append-only');
END`, table),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s_no_delete
BEFORE DELETE ON %[1]s
BEGIN
	SELECT RAISE(ABORT, '%[1]s is append-only');
END`, table),
	}
}

// DropImmutableStatements removes the triggers created by ImmutableStatements.
func DropImmutableStatements(table string) []string {
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_no_update", table),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_no_delete", table),
	}
}

// MakeImmutable installs or removes the write-once triggers on table.
func MakeImmutable(ctx context.Context, db *gorm.DB, table string, enabled bool) error {
	statements := ImmutableStatements(table)
	if !enabled {
		statements = DropImmutableStatements(table)
	}
	for _, statement := range statements {
		if err := db.WithContext(ctx).Exec(statement).Error; err != nil {
			return errs.Wrapf(err, "apply trigger ddl on %s", table)
		}
	}
	return nil
}
