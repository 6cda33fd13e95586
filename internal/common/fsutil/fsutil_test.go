package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func fakeHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	return home
}

func TestExpandHome(t *testing.T) {
	home := fakeHome(t)
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"/etc/modeldash.yaml", "/etc/modeldash.yaml"},
		{"~", home},
		{"~/.config/modeldash/config.yaml", filepath.Join(home, ".config", "modeldash", "config.yaml")},
	}
	for _, c := range cases {
		got, err := ExpandHome(c.in)
		if err != nil {
			t.Fatalf("%q: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%q: got %q want %q", c.in, got, c.want)
		}
	}
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	if PathExists(cfg) {
		t.Fatalf("missing file reported as existing")
	}
	if err := os.WriteFile(cfg, []byte("addr: \":8080\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !PathExists(cfg) {
		t.Fatalf("written file not found")
	}
}

func TestEnsureFileDir(t *testing.T) {
	home := fakeHome(t)
	got, err := EnsureFileDir("~/.local/state/modeldash/modeldash.log")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	want := filepath.Join(home, ".local", "state", "modeldash", "modeldash.log")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if fi, err := os.Stat(filepath.Dir(want)); err != nil || !fi.IsDir() {
		t.Fatalf("log dir not created: %v", err)
	}
	if PathExists(want) {
		t.Fatalf("file itself should not be created")
	}
}
