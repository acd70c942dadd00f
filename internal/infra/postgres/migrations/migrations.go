// Package migrations holds the schema for quizzes and graded attempts.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
