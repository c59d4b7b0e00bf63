package main

import (
	"path/filepath"
	"testing"
)

func TestCLIConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	if _, err := loadCLIConfig(path); err == nil {
		t.Fatalf("expected error for missing config")
	}

	want := CLIConfig{BaseURL: "http://localhost:5000", Email: "a@example.com", Token: "tok"}
	if err := saveCLIConfig(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := loadCLIConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	want := []string{"serve", "migrate", "register", "login", "logout", "post", "act", "list", "top", "status"}
	for _, name := range want {
		if app.Command(name) == nil {
			t.Errorf("missing command %q", name)
		}
	}
}
