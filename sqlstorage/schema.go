package sqlstorage

import (
	"github.com/dreamerjackson/leadcrawler/sqldb"
)

const (
	targetTable = "scrape_targets"
	runTable    = "scrape_runs"
	recordTable = "scrape_records"
)

// runFields is the column order of run inserts.
var runFields = []sqldb.Field{
	{Title: "id", Type: "BIGINT NOT NULL"},
	{Title: "target_id", Type: "BIGINT NOT NULL"},
	{Title: "trigger_reason", Type: "VARCHAR(16) NOT NULL"},
	{Title: "status", Type: "VARCHAR(16) NOT NULL"},
	{Title: "started_at", Type: "BIGINT NULL"},
	{Title: "finished_at", Type: "BIGINT NULL"},
	{Title: "item_count", Type: "INT NOT NULL"},
	{Title: "created_count", Type: "INT NOT NULL"},
	{Title: "updated_count", Type: "INT NOT NULL"},
	{Title: "forwarded_count", Type: "INT NOT NULL"},
	{Title: "error_kind", Type: "VARCHAR(32) NOT NULL"},
	{Title: "error_message", Type: "TEXT NOT NULL"},
	{Title: "stats", Type: "MEDIUMTEXT NOT NULL"},
	{Title: "created_at", Type: "BIGINT NOT NULL"},
}

var tables = []sqldb.TableData{
	{
		TableName: targetTable,
		ColumnNames: []sqldb.Field{
			{Title: "id", Type: "BIGINT NOT NULL"},
			{Title: "name", Type: "VARCHAR(200) NOT NULL"},
			{Title: "start_url", Type: "TEXT NOT NULL"},
			{Title: "fetch_mode", Type: "VARCHAR(16) NOT NULL"},
			{Title: "enabled", Type: "BOOLEAN NOT NULL"},
			{Title: "run_every_minutes", Type: "INT NOT NULL"},
			{Title: "extraction_config", Type: "MEDIUMTEXT NOT NULL"},
			{Title: "last_run_at", Type: "BIGINT NULL"},
			{Title: "created_at", Type: "BIGINT NOT NULL"},
			{Title: "updated_at", Type: "BIGINT NOT NULL"},
		},
		PrimaryKey: "id",
		UniqueKeys: [][]string{{"name"}},
	},
	{
		TableName:   runTable,
		ColumnNames: runFields,
		PrimaryKey:  "id",
		Indexes:     [][]string{{"target_id", "created_at"}},
	},
	{
		TableName: recordTable,
		ColumnNames: []sqldb.Field{
			{Title: "id", Type: "BIGINT NOT NULL"},
			{Title: "target_id", Type: "BIGINT NOT NULL"},
			{Title: "record_key", Type: "VARCHAR(512) NOT NULL"},
			{Title: "source_url", Type: "TEXT NOT NULL"},
			{Title: "field_values", Type: "MEDIUMTEXT NOT NULL"},
			{Title: "detail_values", Type: "MEDIUMTEXT NOT NULL"},
			{Title: "raw_payload", Type: "MEDIUMTEXT NOT NULL"},
			{Title: "payload_hash", Type: "VARCHAR(64) NOT NULL"},
			{Title: "enrich_state", Type: "VARCHAR(16) NOT NULL"},
			{Title: "enrich_error", Type: "TEXT NOT NULL"},
			{Title: "enriched_at", Type: "BIGINT NULL"},
			{Title: "created_at", Type: "BIGINT NOT NULL"},
			{Title: "updated_at", Type: "BIGINT NOT NULL"},
		},
		PrimaryKey: "id",
		UniqueKeys: [][]string{{"target_id", "record_key"}},
		Indexes:    [][]string{{"enrich_state", "created_at"}},
	},
}
