package postgres

import (
	"context"
	"strings"

	"github.com/alierdb/alierdb"
)

// Schema reconstruction through information_schema plus the pg_catalog for
// index column ordering.

const columnsQuery = `
SELECT c.column_name, c.data_type, c.is_nullable, c.column_default
FROM information_schema.columns c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position;`

const primaryKeyQuery = `
SELECT kcu.column_name
FROM information_schema.key_column_usage kcu
JOIN information_schema.table_constraints tc
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY'
  AND kcu.table_schema = $1 AND kcu.table_name = $2
ORDER BY kcu.ordinal_position;`

const indexesQuery = `
SELECT i.indexname AS name,
       array_to_string(array_agg(a.attname ORDER BY array_position(idx.indkey::int[], a.attnum)), ',') AS columns,
       idx.indisunique AS is_unique
FROM pg_indexes i
JOIN pg_class c ON c.relname = i.tablename
JOIN pg_namespace n ON n.oid = c.relnamespace
JOIN pg_class ic ON ic.relname = i.indexname
JOIN pg_index idx ON idx.indexrelid = ic.oid AND idx.indrelid = c.oid
JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(idx.indkey)
WHERE n.nspname = $1 AND i.tablename = $2 AND NOT idx.indisprimary
GROUP BY i.indexname, idx.indisunique
ORDER BY i.indexname;`

const foreignKeysQuery = `
SELECT DISTINCT kcu1.column_name AS from_column,
       kcu2.table_name  AS foreign_table,
       kcu2.column_name AS foreign_column,
       rc.update_rule, rc.delete_rule
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu1
  ON kcu1.constraint_name = rc.constraint_name
 AND kcu1.table_schema = rc.constraint_schema
JOIN information_schema.key_column_usage kcu2
  ON kcu2.constraint_name = rc.unique_constraint_name
 AND kcu2.table_schema = rc.unique_constraint_schema
 AND kcu2.ordinal_position = kcu1.ordinal_position
WHERE kcu1.table_schema = $1 AND kcu1.table_name = $2;`

const tablesQuery = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name;`

// GetSchema introspects every base table of the configured namespace.
func (c *Connector) GetSchema(ctx context.Context) (alierdb.Schema, error) {
	records, err := c.Execute(ctx, tablesQuery, c.schema)
	if err != nil {
		return alierdb.Schema{}, err
	}
	schema := alierdb.Schema{Tables: []alierdb.TableSchema{}}
	for _, rec := range records {
		name, _ := rec["table_name"].(string)
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
	ts := alierdb.TableSchema{Name: name}

	pks, err := c.Execute(ctx, primaryKeyQuery, c.schema, name)
	if err != nil {
		return alierdb.TableSchema{}, err
	}
	pkSet := make(map[string]bool)
	for _, rec := range pks {
		if col, _ := rec["column_name"].(string); col != "" {
			ts.PrimaryKey = append(ts.PrimaryKey, col)
			pkSet[col] = true
		}
	}

	fks, err := c.Execute(ctx, foreignKeysQuery, c.schema, name)
	if err != nil {
		return alierdb.TableSchema{}, err
	}
	fkByColumn := make(map[string]*alierdb.ForeignKey)
	for _, rec := range fks {
		from, _ := rec["from_column"].(string)
		if from == "" {
			continue
		}
		table, _ := rec["foreign_table"].(string)
		column, _ := rec["foreign_column"].(string)
		update, _ := rec["update_rule"].(string)
		del, _ := rec["delete_rule"].(string)
		fkByColumn[from] = &alierdb.ForeignKey{
			Table:    table,
			Column:   column,
			OnUpdate: alierdb.ParseFKAction(update),
			OnDelete: alierdb.ParseFKAction(del),
		}
	}

	idxs, err := c.Execute(ctx, indexesQuery, c.schema, name)
	if err != nil {
		return alierdb.TableSchema{}, err
	}
	uniqueCols := make(map[string]bool)
	for _, rec := range idxs {
		idxName, _ := rec["name"].(string)
		colList, _ := rec["columns"].(string)
		unique := asBool(rec["is_unique"])
		idx := alierdb.IndexSchema{Name: idxName, Unique: unique, Origin: "c"}
		for _, col := range strings.Split(colList, ",") {
			if col = strings.TrimSpace(col); col != "" {
				idx.Columns = append(idx.Columns, col)
			}
		}
		ts.Indexes = append(ts.Indexes, idx)
		if unique && len(idx.Columns) == 1 {
			uniqueCols[idx.Columns[0]] = true
		}
	}

	cols, err := c.Execute(ctx, columnsQuery, c.schema, name)
	if err != nil {
		return alierdb.TableSchema{}, err
	}
	for _, rec := range cols {
		colName, _ := rec["column_name"].(string)
		dataType, _ := rec["data_type"].(string)
		nullable, _ := rec["is_nullable"].(string)
		ts.Columns = append(ts.Columns, alierdb.ColumnSchema{
			Name:       colName,
			Type:       dataType,
			Unique:     uniqueCols[colName],
			Nullable:   nullable == "YES" && !pkSet[colName],
			Default:    rec["column_default"],
			ForeignKey: fkByColumn[colName],
		})
	}
	return ts, nil
}

// CreateTable materializes the table and introspects it back.
func (c *Connector) CreateTable(ctx context.Context, ts alierdb.TableSchema, ifNotExists bool) (alierdb.TableSchema, error) {
	ddl, err := c.CreateTableDDL(ts, ifNotExists)
	if err != nil {
		return alierdb.TableSchema{}, err
	}
	if _, err := c.Execute(ctx, ddl); err != nil {
		return alierdb.TableSchema{}, err
	}
	return c.tableSchema(ctx, ts.Name)
}

// CreateTableDDL renders the CREATE TABLE statement. Unlike SQLite there is
// no rowid-alias subtlety; the primary key is always a table constraint.
func (c *Connector) CreateTableDDL(ts alierdb.TableSchema, ifNotExists bool) (string, error) {
	if err := ts.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(c.AsIdentifier(ts.Name))
	b.WriteString("(")
	for i, col := range ts.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.AsIdentifier(col.Name))
		if col.Type != "" {
			b.WriteString(" ")
			b.WriteString(col.Type)
		}
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if col.Unique {
			b.WriteString(" UNIQUE")
		}
		if col.Default != nil {
			b.WriteString(" DEFAULT ")
			b.WriteString(c.AsValue(col.Default))
		}
		if fk := col.ForeignKey; fk != nil {
			b.WriteString(" REFERENCES ")
			b.WriteString(c.AsIdentifier(fk.Table))
			if fk.Column != "" {
				b.WriteString("(" + c.AsIdentifier(fk.Column) + ")")
			}
			if fk.OnUpdate != alierdb.NoAction {
				action, err := fk.OnUpdate.SQL()
				if err != nil {
					return "", err
				}
				b.WriteString(" ON UPDATE " + action)
			}
			if fk.OnDelete != alierdb.NoAction {
				action, err := fk.OnDelete.SQL()
				if err != nil {
					return "", err
				}
				b.WriteString(" ON DELETE " + action)
			}
		}
	}
	if len(ts.PrimaryKey) > 0 {
		quoted := make([]string, 0, len(ts.PrimaryKey))
		for _, pk := range ts.PrimaryKey {
			quoted = append(quoted, c.AsIdentifier(pk))
		}
		b.WriteString(", PRIMARY KEY (" + strings.Join(quoted, ", ") + ")")
	}
	b.WriteString(");")
	return b.String(), nil
}

// DropTable removes the table.
func (c *Connector) DropTable(ctx context.Context, name string) error {
	_, err := c.Execute(ctx, "DROP TABLE "+c.AsIdentifier(name)+";")
	return err
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "t" || x == "true" || x == "YES"
	case int64:
		return x != 0
	default:
		return false
	}
}
