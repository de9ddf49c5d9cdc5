package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshot_SaveLoadRoundtrip(t *testing.T) {
	snap, err := Fit(context.Background(), testRatings(), smallConfig())
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := snap.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Version() != snap.Version() {
		t.Errorf("Version() = %s, want %s", loaded.Version(), snap.Version())
	}
	if loaded.GlobalMean() != snap.GlobalMean() {
		t.Errorf("GlobalMean() = %v, want %v", loaded.GlobalMean(), snap.GlobalMean())
	}
	if loaded.UserCount() != snap.UserCount() || loaded.MovieCount() != snap.MovieCount() {
		t.Errorf("counts = (%d, %d), want (%d, %d)",
			loaded.UserCount(), loaded.MovieCount(), snap.UserCount(), snap.MovieCount())
	}

	// 加载后的模型产出与原模型相同的预测
	for _, r := range testRatings() {
		a, _ := snap.Predict(r.UserID, r.MovieID)
		b, err := loaded.Predict(r.UserID, r.MovieID)
		if err != nil {
			t.Fatalf("Predict() after Load error = %v", err)
		}
		if a != b {
			t.Fatalf("Predict() after Load = %v, want %v", b, a)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Load(missing) returned nil error")
	}
}

func TestLoad_Corrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load(corrupted) returned nil error")
	}
}

func TestBackupFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	if err := os.WriteFile(path, []byte(`{"version":"v"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	backup, err := BackupFile(path, at)
	if err != nil {
		t.Fatalf("BackupFile() error = %v", err)
	}

	want := filepath.Join(dir, "model_backup_20240102_030405.json")
	if backup != want {
		t.Errorf("BackupFile() = %s, want %s", backup, want)
	}

	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(data) != `{"version":"v"}` {
		t.Errorf("backup content = %s", data)
	}

	// 原文件保持不变
	if _, err := os.Stat(path); err != nil {
		t.Errorf("original file missing after backup: %v", err)
	}
}

func TestBackupFile_MissingSource(t *testing.T) {
	if _, err := BackupFile(filepath.Join(t.TempDir(), "absent.json"), time.Now()); err == nil {
		t.Error("BackupFile(missing) returned nil error")
	}
}
