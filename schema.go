package alierdb

import "fmt"

// FKAction is one of the five referential actions a foreign key may take on
// update or delete of the referenced row.
type FKAction int

const (
	NoAction FKAction = iota
	Restrict
	SetNull
	SetDefault
	Cascade
)

var fkActionSQL = map[FKAction]string{
	NoAction:   "NO ACTION",
	Restrict:   "RESTRICT",
	SetNull:    "SET NULL",
	SetDefault: "SET DEFAULT",
	Cascade:    "CASCADE",
}

// SQL renders the action keyword.
func (a FKAction) SQL() (string, error) {
	s, ok := fkActionSQL[a]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrForeignKeyAction, int(a))
	}
	return s, nil
}

// ParseFKAction maps the keyword text engines report back (PRAGMA
// foreign_key_list, information_schema) onto the enum. Unknown text maps to
// NoAction.
func ParseFKAction(s string) FKAction {
	switch s {
	case "RESTRICT":
		return Restrict
	case "SET NULL":
		return SetNull
	case "SET DEFAULT":
		return SetDefault
	case "CASCADE":
		return Cascade
	default:
		return NoAction
	}
}

// ForeignKey describes one column-level reference.
type ForeignKey struct {
	Table    string
	Column   string
	OnUpdate FKAction
	OnDelete FKAction
}

// ColumnSchema describes one column. Columns are kept as an ordered slice
// (not a name-keyed map) so generated DDL and expanded join column lists
// are deterministic.
type ColumnSchema struct {
	Name       string
	Type       string
	Unique     bool
	Nullable   bool
	Default    any
	ForeignKey *ForeignKey
}

// IndexSchema describes one index as reported by introspection.
type IndexSchema struct {
	Name    string
	Unique  bool
	Origin  string // "c" created, "u" unique constraint, "pk" primary key
	Columns []string
}

// TableSchema is the abstract description of one table, the unit
// CreateTable consumes and introspection reconstructs.
type TableSchema struct {
	Name       string
	PrimaryKey []string
	Columns    []ColumnSchema
	Indexes    []IndexSchema
}

// Column looks a column up by name.
func (t *TableSchema) Column(name string) (*ColumnSchema, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants: a named table with at least
// one column, every primary-key column present, every foreign-key action in
// range.
func (t *TableSchema) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("alierdb: table schema has no name")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("alierdb: table %q has no columns", t.Name)
	}
	for _, pk := range t.PrimaryKey {
		if _, ok := t.Column(pk); !ok {
			return fmt.Errorf("%w: %q in table %q", ErrPrimaryKeyColumn, pk, t.Name)
		}
	}
	for _, col := range t.Columns {
		if fk := col.ForeignKey; fk != nil {
			if _, err := fk.OnUpdate.SQL(); err != nil {
				return err
			}
			if _, err := fk.OnDelete.SQL(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Schema is the in-memory description of everything the database holds.
type Schema struct {
	Tables []TableSchema
}

// Table looks a table up by name.
func (s *Schema) Table(name string) (*TableSchema, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}
