package main

import (
	"crypto/sha256"
	"fmt"
	"testing"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_init_schema.sql", true, "0001", "init_schema"},
		{"0002_seed_categories.sql", true, "0002", "seed_categories"},
		{"001_invalid.sql", false, "", ""},       // wrong number format
		{"0001_test", false, "", ""},             // missing .sql
		{"0001.sql", false, "", ""},              // missing name
		{"invalid_0001_test.sql", false, "", ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			matches := migrationPattern.FindStringSubmatch(tt.filename)
			if (matches != nil) != tt.valid {
				t.Fatalf("match = %v, want valid=%v", matches, tt.valid)
			}
			if !tt.valid {
				return
			}
			if matches[1] != tt.version || matches[2] != tt.name {
				t.Errorf("parsed (%q, %q), want (%q, %q)", matches[1], matches[2], tt.version, tt.name)
			}
		})
	}
}

func TestMigrationChecksumConsistency(t *testing.T) {
	content1 := []byte("CREATE TABLE test (id TEXT);")
	content2 := []byte("CREATE TABLE test (id TEXT);")
	content3 := []byte("CREATE TABLE different (id TEXT);")

	sum := func(b []byte) string { return fmt.Sprintf("%x", sha256.Sum256(b)) }

	if sum(content1) != sum(content2) {
		t.Error("same content should produce the same checksum")
	}
	if sum(content1) == sum(content3) {
		t.Error("different content should produce different checksums")
	}
}
