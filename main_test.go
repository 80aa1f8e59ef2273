package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"peerlink/config"
	"peerlink/storage"
)

func TestUserAddCreatesAccount(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv(config.DataDirEnv, dataDir)

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"user", "add", "--username", "alice", "--realname", "Alice", "--password", "s3cret"})
	if err := root.Execute(); err != nil {
		t.Fatalf("user add failed: %v", err)
	}
	if !strings.Contains(out.String(), `created user "alice"`) {
		t.Fatalf("unexpected output %q", out.String())
	}

	store, _, err := storage.Open(dataDir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	user, err := store.GetUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if user.Realname != "Alice" {
		t.Fatalf("unexpected realname %q", user.Realname)
	}

	root = newRootCommand()
	root.SetArgs([]string{"user", "add", "--username", "alice", "--password", "other"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected duplicate user add to fail")
	}
}

func TestSetLogLevel(t *testing.T) {
	if err := setLogLevel("warn", false); err != nil {
		t.Fatalf("setLogLevel failed: %v", err)
	}
	if err := setLogLevel("bogus", true); err != nil {
		t.Fatalf("expected debug flag to override level: %v", err)
	}
	if err := setLogLevel("bogus", false); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}
