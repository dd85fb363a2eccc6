package sqlite

import (
	"context"
	"strings"

	"github.com/alierdb/alierdb"
)

// CreateTableDDL renders the CREATE TABLE statement for an abstract table
// schema. A single-column primary key is declared inline (so an INTEGER
// primary key stays a rowid alias); a composite key becomes a table
// constraint.
func (c *Connector) CreateTableDDL(ts alierdb.TableSchema, ifNotExists bool) (string, error) {
	if err := ts.Validate(); err != nil {
		return "", err
	}

	inlinePK := ""
	if len(ts.PrimaryKey) == 1 {
		inlinePK = ts.PrimaryKey[0]
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
			b.WriteString(strings.ToUpper(col.Type))
		}
		if col.Name == inlinePK {
			b.WriteString(" PRIMARY KEY")
		}
		if !col.Nullable && col.Name != inlinePK {
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
				b.WriteString("(")
				b.WriteString(c.AsIdentifier(fk.Column))
				b.WriteString(")")
			}
			if fk.OnUpdate != alierdb.NoAction {
				action, err := fk.OnUpdate.SQL()
				if err != nil {
					return "", err
				}
				b.WriteString(" ON UPDATE ")
				b.WriteString(action)
			}
			if fk.OnDelete != alierdb.NoAction {
				action, err := fk.OnDelete.SQL()
				if err != nil {
					return "", err
				}
				b.WriteString(" ON DELETE ")
				b.WriteString(action)
			}
		}
	}

	if len(ts.PrimaryKey) > 1 {
		quoted := make([]string, 0, len(ts.PrimaryKey))
		for _, pk := range ts.PrimaryKey {
			quoted = append(quoted, c.AsIdentifier(pk))
		}
		b.WriteString(", PRIMARY KEY (")
		b.WriteString(strings.Join(quoted, ", "))
		b.WriteString(")")
	}

	b.WriteString(");")
	return b.String(), nil
}

// CreateIndexDDL renders CREATE INDEX statements for the explicitly created
// indexes of a table (origin "c"); constraint-born indexes come out of the
// column and primary-key clauses already.
func (c *Connector) CreateIndexDDL(ts alierdb.TableSchema, ifNotExists bool) []string {
	var stmts []string
	for _, idx := range ts.Indexes {
		if idx.Origin != "" && idx.Origin != "c" {
			continue
		}
		if len(idx.Columns) == 0 {
			continue
		}
		var b strings.Builder
		b.WriteString("CREATE ")
		if idx.Unique {
			b.WriteString("UNIQUE ")
		}
		b.WriteString("INDEX ")
		if ifNotExists {
			b.WriteString("IF NOT EXISTS ")
		}
		b.WriteString(c.AsIdentifier(idx.Name))
		b.WriteString(" ON ")
		b.WriteString(c.AsIdentifier(ts.Name))
		quoted := make([]string, 0, len(idx.Columns))
		for _, col := range idx.Columns {
			quoted = append(quoted, c.AsIdentifier(col))
		}
		b.WriteString("(")
		b.WriteString(strings.Join(quoted, ", "))
		b.WriteString(");")
		stmts = append(stmts, b.String())
	}
	return stmts
}

// CreateTable materializes the table (and its explicit indexes), then
// introspects it back so the caller sees the schema as the engine reports
// it.
func (c *Connector) CreateTable(ctx context.Context, ts alierdb.TableSchema, ifNotExists bool) (alierdb.TableSchema, error) {
	ddl, err := c.CreateTableDDL(ts, ifNotExists)
	if err != nil {
		return alierdb.TableSchema{}, err
	}
	if _, err := c.Execute(ctx, ddl); err != nil {
		return alierdb.TableSchema{}, err
	}
	for _, stmt := range c.CreateIndexDDL(ts, ifNotExists) {
		if _, err := c.Execute(ctx, stmt); err != nil {
			return alierdb.TableSchema{}, err
		}
	}
	return c.tableSchema(ctx, ts.Name)
}

// DropTable removes the table.
func (c *Connector) DropTable(ctx context.Context, name string) error {
	_, err := c.Execute(ctx, "DROP TABLE "+c.AsIdentifier(name)+";")
	return err
}
