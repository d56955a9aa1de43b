package db

import (
	"testing"
	"testing/fstest"
)

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"001_users.sql":         {Data: []byte("CREATE TABLE users (id UUID PRIMARY KEY);")},
		"002_organizations.sql": {Data: []byte("CREATE TABLE organizations (id UUID PRIMARY KEY);")},
		"003_patients.sql":      {Data: []byte("CREATE TABLE patients (id UUID PRIMARY KEY);")},
	}

	migrations, err := NewMigrator(nil, fsys).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_users.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE users (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoad_SortOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"005_middle.sql": {Data: []byte("SELECT 5;")},
	}

	migrations, err := NewMigrator(nil, fsys).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := []int{1, 2, 5, 10}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d].Version = %d, want %d", i, migrations[i].Version, v)
		}
	}
}

func TestLoad_SkipsUnrelatedFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"001_valid.sql": {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("docs")},
		"notes.sql":     {Data: []byte("SELECT 0;")},
		"abc_bad.sql":   {Data: []byte("SELECT 0;")},
		"sub/002_x.sql": {Data: []byte("SELECT 2;")},
	}

	migrations, err := NewMigrator(nil, fsys).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 1 || migrations[0].Version != 1 {
		t.Fatalf("expected only 001_valid.sql, got %+v", migrations)
	}
}

func TestLoad_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigrator(nil, fsys).Load(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestLoad_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}
