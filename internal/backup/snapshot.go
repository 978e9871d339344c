package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

const payloadKind = "nodewarden.sqlite.backup"

// tableDump is one relational table's snapshot inside the database payload.
type tableDump struct {
	Name      string           `json:"name"`
	CreateSQL *string          `json:"createSql"`
	RowCount  int              `json:"rowCount"`
	Rows      []map[string]any `json:"rows"`
}

type databasePayload struct {
	Kind        string      `json:"kind"`
	Version     int         `json:"version"`
	GeneratedAt string      `json:"generatedAt"`
	Tables      []tableDump `json:"tables"`
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// buildDatabasePayload serializes every user table into one JSON document.
// Table names come from the database's own catalog and are validated before
// being interpolated into a query, so a corrupted catalog entry cannot smuggle
// SQL in. The serialized payload is a hard capacity ceiling, not pagination:
// exceeding limits.MaxPayloadBytes fails the run.
func buildDatabasePayload(ctx context.Context, db *sql.DB, limits Limits, generatedAt time.Time) ([]byte, error) {
	metaRows, err := db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	type tableMeta struct {
		name      string
		createSQL *string
	}
	var metas []tableMeta
	for metaRows.Next() {
		var m tableMeta
		var createSQL sql.NullString
		if err := metaRows.Scan(&m.name, &createSQL); err != nil {
			metaRows.Close()
			return nil, fmt.Errorf("scan table meta: %w", err)
		}
		if createSQL.Valid {
			m.createSQL = &createSQL.String
		}
		metas = append(metas, m)
	}
	if err := metaRows.Err(); err != nil {
		metaRows.Close()
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if err := metaRows.Close(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]tableDump, 0, len(metas))
	for _, meta := range metas {
		if !tableNameRe.MatchString(meta.name) {
			return nil, fmt.Errorf("unsafe table name in sqlite_master: %s", meta.name)
		}
		rows, err := dumpTableRows(ctx, db, meta.name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, tableDump{
			Name:      meta.name,
			CreateSQL: meta.createSQL,
			RowCount:  len(rows),
			Rows:      rows,
		})
	}

	payload := databasePayload{
		Kind:        payloadKind,
		Version:     1,
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		Tables:      tables,
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal backup payload: %w", err)
	}
	if len(serialized) > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("backup payload exceeds limit (%d > %d)", len(serialized), limits.MaxPayloadBytes)
	}
	return serialized, nil
}

func dumpTableRows(ctx context.Context, db *sql.DB, table string) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, table))
	if err != nil {
		return nil, fmt.Errorf("dump table %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dump table %s: columns: %w", table, err)
	}

	dumped := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dump table %s: scan: %w", table, err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = v
			}
		}
		dumped = append(dumped, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dump table %s: %w", table, err)
	}
	return dumped, nil
}
