package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/alierdb/alierdb"
)

// Schema reconstruction from the PRAGMA family: table_info for columns and
// the primary key, index_list/index_info for indexes and unique columns,
// foreign_key_list for references.

// ColumnInfo is one PRAGMA table_info row.
type ColumnInfo struct {
	CID     int
	Name    string
	Type    string
	NotNull bool
	Default any
	PK      int // 1-based position in the primary key, 0 if not part of it
}

// IndexInfo is one PRAGMA index_list row plus the indexed columns.
type IndexInfo struct {
	Name    string
	Unique  bool
	Origin  string // "c" created, "u" unique constraint, "pk" primary key
	Columns []string
}

// ForeignKeyInfo is one PRAGMA foreign_key_list row.
type ForeignKeyInfo struct {
	Table    string
	From     string
	To       string
	OnUpdate string
	OnDelete string
}

// TableInfo returns the columns of a table in declaration order.
func (c *Connector) TableInfo(ctx context.Context, table string) ([]ColumnInfo, error) {
	records, err := c.Execute(ctx, "PRAGMA table_info("+c.AsIdentifier(table)+");")
	if err != nil {
		return nil, err
	}
	infos := make([]ColumnInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, ColumnInfo{
			CID:     asInt(rec["cid"]),
			Name:    asText(rec["name"]),
			Type:    asText(rec["type"]),
			NotNull: asInt(rec["notnull"]) != 0,
			Default: rec["dflt_value"],
			PK:      asInt(rec["pk"]),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CID < infos[j].CID })
	return infos, nil
}

// IndexList returns the indexes of a table, each with its column list.
func (c *Connector) IndexList(ctx context.Context, table string) ([]IndexInfo, error) {
	records, err := c.Execute(ctx, "PRAGMA index_list("+c.AsIdentifier(table)+");")
	if err != nil {
		return nil, err
	}
	infos := make([]IndexInfo, 0, len(records))
	for _, rec := range records {
		info := IndexInfo{
			Name:   asText(rec["name"]),
			Unique: asInt(rec["unique"]) != 0,
			Origin: asText(rec["origin"]),
		}
		cols, err := c.Execute(ctx, "PRAGMA index_info("+c.AsIdentifier(info.Name)+");")
		if err != nil {
			return nil, err
		}
		for _, col := range cols {
			if name := asText(col["name"]); name != "" {
				info.Columns = append(info.Columns, name)
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ForeignKeyList returns the outgoing references of a table.
func (c *Connector) ForeignKeyList(ctx context.Context, table string) ([]ForeignKeyInfo, error) {
	records, err := c.Execute(ctx, "PRAGMA foreign_key_list("+c.AsIdentifier(table)+");")
	if err != nil {
		return nil, err
	}
	infos := make([]ForeignKeyInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, ForeignKeyInfo{
			Table:    asText(rec["table"]),
			From:     asText(rec["from"]),
			To:       asText(rec["to"]),
			OnUpdate: asText(rec["on_update"]),
			OnDelete: asText(rec["on_delete"]),
		})
	}
	return infos, nil
}

// GetSchema introspects every user table.
func (c *Connector) GetSchema(ctx context.Context) (alierdb.Schema, error) {
	records, err := c.Execute(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name;")
	if err != nil {
		return alierdb.Schema{}, err
	}
	schema := alierdb.Schema{Tables: []alierdb.TableSchema{}}
	for _, rec := range records {
		name := asText(rec["name"])
		if name == "" {
			continue
		}
		ts, err := c.tableSchema(ctx, name)
		if err != nil {
			return alierdb.Schema{}, err
		}
		schema.Tables = append(schema.Tables, ts)
	}
	return schema, nil
}

func (c *Connector) tableSchema(ctx context.Context, name string) (alierdb.TableSchema, error) {
	cols, err := c.TableInfo(ctx, name)
	if err != nil {
		return alierdb.TableSchema{}, err
	}
	indexes, err := c.IndexList(ctx, name)
	if err != nil {
		return alierdb.TableSchema{}, err
	}
	fks, err := c.ForeignKeyList(ctx, name)
	if err != nil {
		return alierdb.TableSchema{}, err
	}
	return AssembleSchema(name, cols, indexes, fks), nil
}

// AssembleSchema folds the three PRAGMA views into one TableSchema. Split
// out from tableSchema so it stays testable without a live database.
func AssembleSchema(name string, cols []ColumnInfo, indexes []IndexInfo, fks []ForeignKeyInfo) alierdb.TableSchema {
	ts := alierdb.TableSchema{Name: name}

	// primary key columns ordered by their pk position
	var pk []ColumnInfo
	for _, col := range cols {
		if col.PK > 0 {
			pk = append(pk, col)
		}
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].PK < pk[j].PK })
	for _, col := range pk {
		ts.PrimaryKey = append(ts.PrimaryKey, col.Name)
	}

	uniqueCols := make(map[string]bool)
	for _, idx := range indexes {
		ts.Indexes = append(ts.Indexes, alierdb.IndexSchema{
			Name:    idx.Name,
			Unique:  idx.Unique,
			Origin:  idx.Origin,
			Columns: idx.Columns,
		})
		if idx.Unique && idx.Origin == "u" && len(idx.Columns) == 1 {
			uniqueCols[idx.Columns[0]] = true
		}
	}

	fkByColumn := make(map[string]*alierdb.ForeignKey)
	for _, fk := range fks {
		fkByColumn[fk.From] = &alierdb.ForeignKey{
			Table:    fk.Table,
			Column:   fk.To,
			OnUpdate: alierdb.ParseFKAction(fk.OnUpdate),
			OnDelete: alierdb.ParseFKAction(fk.OnDelete),
		}
	}

	for _, col := range cols {
		ts.Columns = append(ts.Columns, alierdb.ColumnSchema{
			Name:       col.Name,
			Type:       col.Type,
			Unique:     uniqueCols[col.Name],
			Nullable:   !col.NotNull && col.PK == 0,
			Default:    col.Default,
			ForeignKey: fkByColumn[col.Name],
		})
	}
	return ts
}

// asInt and asText absorb the loose typing of PRAGMA result values across
// driver versions.
func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case float64:
		return int(x)
	case string:
		n := 0
		_, _ = fmt.Sscanf(x, "%d", &n)
		return n
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func asText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", x))
	}
}
