package planner

// SymbolTable is an insertion-ordered mapping from table name to
// alias, used to compare the tables of a join against the join
// policy table in FROM-clause order.
type SymbolTable struct {
	entries []symtabEntry
}

type symtabEntry struct {
	Table string
	Alias string
}

// Add appends a table/alias pair.
func (st *SymbolTable) Add(table, alias string) {
	st.entries = append(st.entries, symtabEntry{Table: table, Alias: alias})
}

// Len returns the number of entries.
func (st *SymbolTable) Len() int {
	return len(st.entries)
}

// At returns the i-th entry in insertion order.
func (st *SymbolTable) At(i int) (table, alias string, ok bool) {
	if i < 0 || i >= len(st.entries) {
		return "", "", false
	}
	e := st.entries[i]
	return e.Table, e.Alias, true
}

// TableForAlias looks up the base table name for a given alias.
func (st *SymbolTable) TableForAlias(alias string) (string, bool) {
	for _, e := range st.entries {
		if e.Alias == alias {
			return e.Table, true
		}
	}
	return "", false
}

// Tables returns the base table names in insertion order.
func (st *SymbolTable) Tables() []string {
	tables := make([]string, len(st.entries))
	for i, e := range st.entries {
		tables[i] = e.Table
	}
	return tables
}
