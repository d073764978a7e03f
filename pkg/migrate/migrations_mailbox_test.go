package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBundleMigrationContainsPartitionIndexes(t *testing.T) {
	content := readMigration(t, "*_create_bundles.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS bundles",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_bundles_open_partition",
		"WHERE state = 'open'",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_bundles_deliverable_partition",
		"WHERE state IN ('closed', 'materialized')",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_bundles_peek_message_id",
		"DROP TABLE IF EXISTS bundles",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutgoingMessagesMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_outgoing_messages.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS outgoing_messages",
		"FOREIGN KEY (bundle_id) REFERENCES bundles(id) ON DELETE CASCADE",
		"CHECK (sequence_no > 0)",
		"ux_outgoing_messages_bundle_seq",
		"DROP TABLE IF EXISTS outgoing_messages",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationContainsPendingIndex(t *testing.T) {
	content := readMigration(t, "*_create_outbox_events.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"ux_outbox_events_event_aggregate",
		"WHERE published_at IS NULL",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
