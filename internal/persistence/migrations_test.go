package persistence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migration files: %v", err)
	}
	if strings.Join(files, ",") != "001_a.sql,002_b.sql" {
		t.Fatalf("files = %v", files)
	}

	if _, err := migrationFiles(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestRepositoryMigrationsPresent(t *testing.T) {
	files, err := migrationFiles(filepath.Join("..", "..", DefaultMigrationsDir))
	if err != nil {
		t.Fatalf("migration files: %v", err)
	}
	if len(files) == 0 || files[0] != "001_push_subscriptions.sql" {
		t.Fatalf("files = %v", files)
	}
}
