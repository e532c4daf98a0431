package sqlsafety

import (
	"testing"

	"github.com/orchestra-run/queryweave/pkg/state"
)

func sampleSchema() map[string]state.TableSchema {
	return map[string]state.TableSchema{
		"contacts": {Columns: []state.ColumnInfo{{Name: "name"}, {Name: "phone"}}},
		"orders":   {Columns: []state.ColumnInfo{{Name: "id"}, {Name: "customer_id"}}},
	}
}

func TestParseTableReferences_SimpleFrom(t *testing.T) {
	refs := ParseTableReferences("SELECT * FROM contacts")
	if len(refs) != 1 || refs[0].Table != "contacts" || refs[0].Alias != "contacts" {
		t.Fatalf("got %+v", refs)
	}
}

func TestParseTableReferences_JoinWithAlias(t *testing.T) {
	refs := ParseTableReferences("SELECT * FROM orders o JOIN contacts c ON o.customer_id = c.id")
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %+v", refs)
	}
	if refs[0].Table != "orders" || refs[0].Alias != "o" {
		t.Errorf("got %+v", refs[0])
	}
	if refs[1].Table != "contacts" || refs[1].Alias != "c" {
		t.Errorf("got %+v", refs[1])
	}
}

func TestValidateAgainstSchema_UnknownTable(t *testing.T) {
	err := ValidateAgainstSchema("SELECT * FROM missing_table", sampleSchema())
	if err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestValidateAgainstSchema_UnknownColumn(t *testing.T) {
	// A single unambiguous table in scope lets the unqualified SELECT-list
	// columns be checked too, not just alias.column / table.column forms.
	err := ValidateAgainstSchema("SELECT name, phon FROM contacts", sampleSchema())
	if err == nil {
		t.Fatal("expected error for unknown unqualified column")
	}
}

func TestValidateAgainstSchema_UnqualifiedColumnSkippedWhenJoinPresent(t *testing.T) {
	// With more than one table in scope an unqualified column can't be
	// attributed without ambiguity, so it is left unchecked.
	err := ValidateAgainstSchema("SELECT id, phon FROM orders JOIN contacts ON orders.customer_id = contacts.name", sampleSchema())
	if err != nil {
		t.Fatalf("unexpected error for unqualified column under join: %v", err)
	}
}

func TestValidateAgainstSchema_QualifiedUnknownColumn(t *testing.T) {
	err := ValidateAgainstSchema("SELECT c.phon FROM contacts c", sampleSchema())
	if err == nil {
		t.Fatal("expected error for unknown qualified column")
	}
}

func TestValidateAgainstSchema_QualifiedKnownColumn(t *testing.T) {
	err := ValidateAgainstSchema("SELECT c.phone FROM contacts c", sampleSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAgainstSchema_CaseInsensitiveTable(t *testing.T) {
	err := ValidateAgainstSchema("SELECT * FROM Contacts", sampleSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
