package main

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestListEmbeddedMigrations(t *testing.T) {
	em := NewEmbeddedMigration(nil)

	files, err := em.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}

	if len(files) == 0 {
		t.Fatal("expected embedded migration files, got none")
	}

	// Lexicographic order must match sequence order with zero-padded prefixes.
	for i := 1; i < len(files); i++ {
		if files[i-1] >= files[i] {
			t.Errorf("files not sorted: %s >= %s", files[i-1], files[i])
		}
	}

	for _, file := range files {
		if !strings.HasSuffix(file, ".up.sql") && !strings.HasSuffix(file, ".down.sql") {
			t.Errorf("unexpected migration filename: %s", file)
		}
	}
}

func TestValidateEmbeddedMigrations(t *testing.T) {
	em := NewEmbeddedMigration(nil)

	if err := em.Validate(); err != nil {
		t.Errorf("embedded migrations failed validation: %v", err)
	}
}

func TestValidatePairing(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		wantErr string
	}{
		{
			name:  "complete pair",
			files: []string{"001_create_documents.up.sql", "001_create_documents.down.sql"},
		},
		{
			name:    "missing down migration",
			files:   []string{"001_create_documents.up.sql"},
			wantErr: "missing down migration",
		},
		{
			name:    "missing up migration",
			files:   []string{"001_create_documents.down.sql"},
			wantErr: "missing up migration",
		},
		{
			name: "gap in sequence",
			files: []string{
				"001_create_documents.up.sql", "001_create_documents.down.sql",
				"003_create_inspections.up.sql", "003_create_inspections.down.sql",
			},
			wantErr: "gap in migration sequence",
		},
		{
			name: "sequence starts past one",
			files: []string{
				"002_create_processing_runs.up.sql", "002_create_processing_runs.down.sql",
			},
			wantErr: "should start with 001",
		},
		{
			name:    "no migrations",
			files:   nil,
			wantErr: "no embedded migration files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapFS := fstest.MapFS{}
			for _, f := range tt.files {
				mapFS[f] = &fstest.MapFile{Data: []byte("SELECT 1;")}
			}

			err := NewEmbeddedMigration(mapFS).Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}

				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		wantSeq  int
		wantDir  string
		wantErr  bool
	}{
		{"001_create_documents.up.sql", 1, "up", false},
		{"005_create_maintenance_events.down.sql", 5, "down", false},
		{"1_bad.up.sql", 0, "", true},
		{"001-dashes.up.sql", 0, "", true},
		{"001_name.sideways.sql", 0, "", true},
		{"README.md", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			info, err := parseMigrationFilename(tt.filename)

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %s", tt.filename)
				}

				return
			}

			if err != nil {
				t.Fatalf("parseMigrationFilename(%s) failed: %v", tt.filename, err)
			}

			if info.Sequence != tt.wantSeq || info.Direction != tt.wantDir {
				t.Errorf("got seq=%d dir=%s, want seq=%d dir=%s",
					info.Sequence, info.Direction, tt.wantSeq, tt.wantDir)
			}
		})
	}
}

func TestMaxSchemaVersion(t *testing.T) {
	em := NewEmbeddedMigration(nil)

	if got := em.MaxSchemaVersion(); got < 5 {
		t.Errorf("MaxSchemaVersion() = %d, want at least 5", got)
	}
}
