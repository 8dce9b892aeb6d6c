package main

import (
	"reflect"
	"testing"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/config"
)

// tests parseStageList function
func TestParseStageList(t *testing.T) {
	tests := []struct {
		input  string
		expect []string
	}{
		{"", nil},
		{" , ,", nil},
		{"setup_schema", []string{"setup_schema"}},
		{"Setup_Schema, dual_insert ,", []string{"setup_schema", "dual_insert"}},
	}

	for i, tc := range tests {
		got := parseStageList(tc.input)
		if !reflect.DeepEqual(got, tc.expect) {
			t.Errorf("[Test case: %d] parseStageList(%q) expected %v, got %v", i+1, tc.input, tc.expect, got)
		}
	}
}

// tests isValidStage function
func TestIsValidStage(t *testing.T) {
	labels := []string{"setup_schema", "dual_insert", "postgres_books"}
	tests := []struct {
		label  string
		expect bool
	}{
		{"setup_schema", true},
		{"DUAL_INSERT", true},
		{"postgres_books", true},
		{"setup", false},
		{"", false},
	}

	for i, tc := range tests {
		if got := isValidStage(tc.label, labels); got != tc.expect {
			t.Errorf("Test case: %d, isValidStage(%s) expected %v, got %v", i+1, tc.label, tc.expect, got)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name      string
		flags     runFlags
		expectErr bool
		check     func(t *testing.T, cfg *config.Config)
	}{
		{
			name:  "no flags",
			flags: runFlags{},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Pipeline.BooksCount != 100000 {
					t.Errorf("Expected full dataset, got %d books", cfg.Pipeline.BooksCount)
				}
			},
		},
		{
			name:  "reduced with overrides",
			flags: runFlags{reduced: true, stopOnError: true, continueOnBatchError: true, report: "out/report.html"},
			check: func(t *testing.T, cfg *config.Config) {
				if !cfg.Pipeline.Reduced || cfg.Pipeline.BooksCount != 10000 {
					t.Errorf("Expected reduced dataset, got %+v", cfg.Pipeline)
				}
				if !cfg.Pipeline.StopOnError || !cfg.Pipeline.ContinueOnBatchError {
					t.Errorf("Expected error flags to be set")
				}
				if cfg.Paths.ReportPath != "out/report.html" {
					t.Errorf("Expected report path override, got %s", cfg.Paths.ReportPath)
				}
			},
		},
		{
			name:  "only stages",
			flags: runFlags{only: "setup_schema,complex_query"},
			check: func(t *testing.T, cfg *config.Config) {
				if !cfg.Pipeline.Enabled("complex_query") || cfg.Pipeline.Enabled("dual_insert") {
					t.Errorf("Unexpected enabled stages for only=%v", cfg.Pipeline.Only)
				}
			},
		},
		{
			name:  "skip postgres",
			flags: runFlags{skip: "postgres_books"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Pipeline.Enabled("postgres_books") {
					t.Errorf("Expected postgres_books to be skipped")
				}
			},
		},
		{name: "unknown stage", flags: runFlags{skip: "drop_everything"}, expectErr: true},
		{name: "skip and only", flags: runFlags{skip: "dual_insert", only: "setup_schema"}, expectErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			err := applyFlags(cfg, tc.flags)
			if (err != nil) != tc.expectErr {
				t.Fatalf("applyFlags expected error: %v, got %v", tc.expectErr, err)
			}
			if tc.check != nil {
				tc.check(t, cfg)
			}
		})
	}
}

func TestLoadOptions(t *testing.T) {
	cfg := config.Default()
	if n := len(loadOptions(cfg)); n != 1 {
		t.Errorf("Expected 1 loader option, got %d", n)
	}
	cfg.Pipeline.ContinueOnBatchError = true
	if n := len(loadOptions(cfg)); n != 2 {
		t.Errorf("Expected 2 loader options, got %d", n)
	}
}

func TestNewToolkit(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.MySQLDump = "/opt/mysql/bin/mysqldump"
	tk := newToolkit(cfg)
	if tk.MySQLDumpBin != "/opt/mysql/bin/mysqldump" {
		t.Errorf("Expected configured mysqldump path, got %s", tk.MySQLDumpBin)
	}
	if tk.MySQL.Database != cfg.MySQL.DBName || tk.Mongo.Database != cfg.MongoDB.DBName {
		t.Errorf("Toolkit targets do not match config: %+v %+v", tk.MySQL, tk.Mongo)
	}
}
