package db

import (
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"
)

// SQLiteDialector is the sqlite dialector with decimal columns declared as
// text. Under sqlite's numeric affinity a decimal(20,6) value is kept as a
// float64 and loses every digit past the 15th.
type SQLiteDialector struct {
	*sqlite.Dialector
}

func SQLite(dsn string) gorm.Dialector {
	return &SQLiteDialector{Dialector: &sqlite.Dialector{DSN: dsn}}
}

func (d SQLiteDialector) DataTypeOf(field *schema.Field) string {
	if strings.HasPrefix(strings.ToLower(string(field.DataType)), "decimal") {
		return "text"
	}
	return d.Dialector.DataTypeOf(field)
}

func (d SQLiteDialector) Migrator(db *gorm.DB) gorm.Migrator {
	return sqlite.Migrator{Migrator: migrator.Migrator{Config: migrator.Config{
		DB:                          db,
		Dialector:                   d,
		CreateIndexAfterCreateTable: true,
	}}}
}
