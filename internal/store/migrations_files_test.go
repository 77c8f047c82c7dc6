package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const migrationsDir = "../../db/migrations"

func TestEveryUpMigrationHasADown(t *testing.T) {
	ups, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		t.Fatalf("glob up migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no up migrations found")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}

// Short-link uniqueness is load-bearing: the insert/update paths count on the
// constraint rejecting the second concurrent writer, so the schema must
// declare it rather than leave it to application checks.
func TestInitMigrationDeclaresConstraints(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join(migrationsDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	ddl := strings.ToLower(string(contents))

	for _, table := range []string{"users", "opportunities", "resources"} {
		if !strings.Contains(ddl, "create table if not exists "+table) {
			t.Errorf("init migration must create %s", table)
		}
	}
	if strings.Count(ddl, "short_link text not null unique") != 2 {
		t.Error("both listing tables must declare short_link UNIQUE")
	}
	if !strings.Contains(ddl, "email text not null unique") {
		t.Error("users.email must be unique")
	}
}
