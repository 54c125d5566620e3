package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "mesctl dev") {
		t.Errorf("expected output to contain 'mesctl dev', got: %s", buf.String())
	}
}

// useSQLite 让命令连接临时 sqlite 文件
func useSQLite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "mes.db"))
	t.Setenv("STORAGE_DRAWING_DIR", filepath.Join(dir, "drawings"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATABASE_LOG_LEVEL", "silent")
	t.Setenv("JWT_SECRET", "mesctl-test-secret")
	return dir
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v failed: %v\n%s", args, err, buf.String())
	}
	return buf.String()
}

func TestSeedImportAndListRoutes(t *testing.T) {
	dir := useSQLite(t)

	out := run(t, "seed")
	if !strings.Contains(out, `Default route "Stock"`) {
		t.Errorf("unexpected seed output: %s", out)
	}
	// 重复执行不报错
	run(t, "seed")

	file := filepath.Join(dir, "batch.csv")
	csv := "Batch #3\nDesignation,Name,Qty,Size,Operations,Material\nA1,,,,,\nP1,Pin,2,M6,\"Turning, Milling\",Steel\n"
	if err := os.WriteFile(file, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	out = run(t, "import", file, "--user", "admin")
	if !strings.Contains(out, "added 2, skipped 0") {
		t.Errorf("unexpected import output: %s", out)
	}

	out = run(t, "routes", "list")
	if !strings.Contains(out, "* ") || !strings.Contains(out, "Stock") {
		t.Errorf("expected default Stock route, got: %s", out)
	}
	if !strings.Contains(out, "Turning -> Milling") {
		t.Errorf("expected imported route, got: %s", out)
	}

	out = run(t, "token", "--user", "admin")
	if strings.Count(strings.TrimSpace(out), ".") != 2 {
		t.Errorf("expected a JWT, got: %s", out)
	}
}

func TestImportUnknownUser(t *testing.T) {
	useSQLite(t)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"import", "missing.csv", "--user", "nobody"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for unknown user")
	}
}
