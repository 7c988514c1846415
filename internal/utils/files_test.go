package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/csvchat/internal/utils"
)

func TestSafeWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	if err := utils.SafeWriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("SafeWriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestPrettyJSON(t *testing.T) {
	b, err := utils.PrettyJSON(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("PrettyJSON: %v", err)
	}
	if !strings.Contains(string(b), "\n  \"a\": 1") {
		t.Fatalf("expected indented output, got %s", b)
	}
}
