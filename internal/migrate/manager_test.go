package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	script := `-- create the table
create table principals (
	id text primary key
);

create index principals_email_idx on principals(email);
`
	stmts := splitStatements(script)
	if len(stmts) != 2 {
		t.Fatalf("statements = %d, want 2", len(stmts))
	}
	if !strings.Contains(stmts[0], "create table principals") {
		t.Fatalf("first statement wrong: %s", stmts[0])
	}
	if strings.Contains(stmts[0], "--") {
		t.Fatalf("comment leaked into statement: %s", stmts[0])
	}
	if !strings.Contains(stmts[1], "create index") {
		t.Fatalf("second statement wrong: %s", stmts[1])
	}
}

func TestSplitStatementsKeepsTrailingStatement(t *testing.T) {
	stmts := splitStatements("select 1")
	if len(stmts) != 1 || strings.TrimSpace(stmts[0]) != "select 1" {
		t.Fatalf("unexpected statements: %v", stmts)
	}
}

func TestCollectSQLSortsByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_sessions.up.sql", "0001_principals.up.sql", "0001_principals.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := collectSQL(dir, ".up.sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	if files[0].Base != "0001_principals.up.sql" || files[1].Base != "0002_sessions.up.sql" {
		t.Fatalf("order wrong: %s, %s", files[0].Base, files[1].Base)
	}
}

func TestCollectSQLMissingDir(t *testing.T) {
	files, err := collectSQL(filepath.Join(t.TempDir(), "absent"), ".up.sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %d", len(files))
	}
}
