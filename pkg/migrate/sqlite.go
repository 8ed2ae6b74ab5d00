package migrate

import (
	"context"
	_ "embed"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for the sqlite driver, which
// cannot run the Postgres enums, triggers or gen_random_uuid defaults.
//
//go:embed sqlite/schema.sql
var sqliteSchema string

// ApplySQLiteSchema creates every table on a sqlite connection. It is idempotent.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if err := conn.WithContext(ctx).Exec(sqliteSchema).Error; err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
