package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"LIFEPLAN_DATABASE_DRIVER", "LIFEPLAN_DATABASE_URL", "DATABASE_URL"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "admin.yaml")
	cfg := "log:\n  format: text\n  level: error\n" +
		"database:\n  driver: sqlite\n  url: " + filepath.Join(dir, "auth.db") + "\n" +
		"auth:\n  environment: development\n  argon2_memory_kb: 8192\n  argon2_time: 1\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestGenKey(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"gen-key"}, nil, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("gen-key failed: %v", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("key is not base64: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32 byte key, got %d", len(key))
	}
}

func TestUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	if err := run(context.Background(), []string{"frobnicate"}, nil, &bytes.Buffer{}, &stderr); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(stderr.String(), "usage:") {
		t.Fatalf("usage not printed: %q", stderr.String())
	}
	if err := run(context.Background(), nil, nil, &bytes.Buffer{}, &bytes.Buffer{}); err != errUsage {
		t.Fatalf("expected errUsage, got %v", err)
	}
}

func TestMigrateRefusesMemory(t *testing.T) {
	t.Setenv("LIFEPLAN_CONFIG", "")
	t.Setenv("LIFEPLAN_DATABASE_DRIVER", "")
	err := run(context.Background(), []string{"migrate"}, nil, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "memory") {
		t.Fatalf("expected memory driver error, got %v", err)
	}
}

func TestCreateUserAndAudit(t *testing.T) {
	ctx := context.Background()
	cfg := writeConfig(t)

	var out bytes.Buffer
	if err := run(ctx, []string{"migrate", "-config", cfg}, nil, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out.String(), "applied 3 migration(s)") {
		t.Fatalf("unexpected migrate output %q", out.String())
	}
	out.Reset()
	if err := run(ctx, []string{"migrate", "-config", cfg}, nil, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if !strings.Contains(out.String(), "up to date") {
		t.Fatalf("unexpected migrate output %q", out.String())
	}

	out.Reset()
	args := []string{"create-user", "-config", cfg, "-email", "Ops@Example.com", "-name", "Operations Lead", "-role", "admin"}
	if err := run(ctx, args, strings.NewReader("Correct-Horse-Battery-9\n"), &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("create-user failed: %v", err)
	}
	if !strings.Contains(out.String(), "ops@example.com") || !strings.Contains(out.String(), "role=admin") {
		t.Fatalf("unexpected create-user output %q", out.String())
	}

	err := run(ctx, args, strings.NewReader("Correct-Horse-Battery-9\n"), &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected duplicate account error")
	}

	args = []string{"create-user", "-config", cfg, "-email", "x@example.com", "-name", "X", "-role", "root"}
	err = run(ctx, args, strings.NewReader("Correct-Horse-Battery-9\n"), &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.HasPrefix(err.Error(), "role:") {
		t.Fatalf("expected role validation error, got %v", err)
	}

	out.Reset()
	if err := run(ctx, []string{"audit", "-config", cfg, "-limit", "10"}, nil, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	var found bool
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var ev struct {
			Code     string         `json:"code"`
			ActorID  string         `json:"actor_id"`
			Metadata map[string]any `json:"metadata"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("decode audit line %q: %v", line, err)
		}
		if ev.Code == "ADMIN_USER_CREATE" && ev.ActorID == operatorID {
			found = true
			if ev.Metadata["source"] != "operator" {
				t.Fatalf("unexpected metadata %v", ev.Metadata)
			}
		}
	}
	if !found {
		t.Fatalf("operator create not audited: %s", out.String())
	}
}

func TestDisableAndEnableUser(t *testing.T) {
	ctx := context.Background()
	cfg := writeConfig(t)

	if err := run(ctx, []string{"migrate", "-config", cfg}, nil, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	args := []string{"create-user", "-config", cfg, "-email", "member@example.com", "-name", "Member", "-role", "user"}
	if err := run(ctx, args, strings.NewReader("Correct-Horse-Battery-9\n"), &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("create-user failed: %v", err)
	}

	var out, stderr bytes.Buffer
	if err := run(ctx, []string{"disable-user", "-config", cfg, "-email", "Member@Example.com"}, nil, &out, &stderr); err != nil {
		t.Fatalf("disable-user failed: %v", err)
	}
	if !strings.Contains(out.String(), "disabled member@example.com") || !strings.Contains(out.String(), "sessions_revoked=0") {
		t.Fatalf("unexpected disable-user output %q", out.String())
	}
	if !strings.Contains(stderr.String(), "redis.url is not set") {
		t.Fatalf("expected revocation warning, got %q", stderr.String())
	}

	out.Reset()
	if err := run(ctx, []string{"enable-user", "-config", cfg, "-email", "member@example.com"}, nil, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("enable-user failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "enabled member@example.com") {
		t.Fatalf("unexpected enable-user output %q", out.String())
	}

	err := run(ctx, []string{"disable-user", "-config", cfg, "-email", "ghost@example.com"}, nil, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for unknown account")
	}
	if err := run(ctx, []string{"disable-user", "-config", cfg}, nil, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error without -email")
	}

	out.Reset()
	if err := run(ctx, []string{"audit", "-config", cfg, "-actor", operatorID}, nil, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	for _, code := range []string{"ADMIN_ACCOUNT_DISABLE", "ADMIN_ACCOUNT_ENABLE"} {
		if !strings.Contains(out.String(), code) {
			t.Fatalf("%s not audited: %s", code, out.String())
		}
	}
}

func TestPromptPasswordFromPipe(t *testing.T) {
	pw, err := promptPassword(strings.NewReader("secret-value\r\n"), &bytes.Buffer{})
	if err != nil || pw != "secret-value" {
		t.Fatalf("got %q, %v", pw, err)
	}
	if _, err := promptPassword(strings.NewReader(""), &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for empty stdin")
	}
}

func TestPromptPasswordTerminalMismatch(t *testing.T) {
	origRead, origTerm := readPassword, isTerminal
	t.Cleanup(func() { readPassword, isTerminal = origRead, origTerm })

	answers := []string{"first-password", "second-password"}
	readPassword = func(int) ([]byte, error) {
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
	isTerminal = func(int) bool { return true }

	if _, err := promptPassword(os.Stdin, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}
