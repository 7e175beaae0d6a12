package db_test

import (
	"testing"

	"github.com/notifyhub/campaign-push/internal/db"
)

func TestMigrationURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/push":   "pgx5://u:p@localhost:5432/push",
		"postgresql://u:p@localhost:5432/push": "pgx5://u:p@localhost:5432/push",
		"u:p@localhost:5432/push":              "pgx5://u:p@localhost:5432/push",
	}
	for in, want := range tests {
		if got := db.MigrationURL(in); got != want {
			t.Fatalf("MigrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrateSteps_RejectsZero(t *testing.T) {
	if _, err := db.MigrateSteps("file://migrations", "postgres://localhost/push", 0); err == nil {
		t.Fatal("expected zero steps to be rejected")
	}
}
