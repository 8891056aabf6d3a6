package identity

import (
	"testing"

	"cortex/internal/core"
)

func mkSymbol(name, sig, body string, line int) core.Symbol {
	s := core.Symbol{
		Language:      core.LangGo,
		FilePath:      "pkg/server/handler.go",
		Kind:          core.KindFunction,
		Name:          name,
		QualifiedName: "server." + name,
		Signature:     sig,
		StartLine:     line,
		EndLine:       line + 5,
	}
	Fill(&s, []byte(body))
	return s
}

func TestStableID_MoveWithinFileKeepsID(t *testing.T) {
	a := mkSymbol("Handle", "func Handle(w http.ResponseWriter, r *http.Request)", "func Handle() {}", 10)
	b := mkSymbol("Handle", "func Handle(w http.ResponseWriter, r *http.Request)", "func Handle() {}", 200)

	if a.ID != b.ID {
		t.Errorf("moving a symbol changed its ID: %s vs %s", a.ID, b.ID)
	}
}

func TestStableID_WhitespaceOnlySignatureEditKeepsID(t *testing.T) {
	a := mkSymbol("Handle", "func Handle(w http.ResponseWriter, r *http.Request)", "x", 1)
	b := mkSymbol("Handle", "func Handle( w  http.ResponseWriter,\n\tr *http.Request )", "x", 1)

	if a.ID != b.ID {
		t.Error("whitespace-only signature edit changed the ID")
	}
}

func TestStableID_RenameChangesID(t *testing.T) {
	a := mkSymbol("Handle", "func Handle()", "same body", 1)
	b := mkSymbol("Serve", "func Serve()", "same body", 1)

	if a.ID == b.ID {
		t.Error("rename did not change the ID")
	}
}

func TestStableID_DifferentKindDifferentID(t *testing.T) {
	fn := mkSymbol("Config", "type Config struct", "x", 1)
	st := fn
	st.Kind = core.KindStruct
	st.ID = StableID(st.Language, st.FilePath, st.Kind, st.QualifiedName, st.SignatureFingerprint)

	if fn.ID == st.ID {
		t.Error("kind should participate in identity")
	}
}

func TestStableID_Prefix(t *testing.T) {
	s := mkSymbol("Handle", "func Handle()", "x", 1)
	if len(s.ID) != len("sym:")+64 {
		t.Errorf("unexpected ID shape: %q", s.ID)
	}
	if s.ID[:4] != "sym:" {
		t.Errorf("ID should carry sym: prefix, got %q", s.ID)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"pkg\\server\\handler.go", "pkg/server/handler.go"},
		{"./pkg/a.go", "pkg/a.go"},
		{"pkg/a.go", "pkg/a.go"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiff_AddedUpdatedRemoved(t *testing.T) {
	kept := mkSymbol("Keep", "func Keep()", "unchanged", 1)
	gone := mkSymbol("Gone", "func Gone()", "old", 10)
	edited := mkSymbol("Edit", "func Edit()", "v1", 20)

	editedV2 := mkSymbol("Edit", "func Edit()", "v2", 20)
	fresh := mkSymbol("Fresh", "func Fresh()", "new", 30)

	cs := Diff("pkg/server/handler.go", core.LangGo,
		[]core.Symbol{kept, gone, edited},
		[]core.Symbol{kept, editedV2, fresh})

	if len(cs.Added) != 1 || cs.Added[0].ID != fresh.ID {
		t.Errorf("Added = %v, want just %s", ids(cs.Added), fresh.ID)
	}
	if len(cs.Updated) != 1 || cs.Updated[0].ID != edited.ID {
		t.Errorf("Updated = %v, want just %s", ids(cs.Updated), edited.ID)
	}
	if cs.Updated[0].ContentHash != editedV2.ContentHash {
		t.Error("Updated entry should carry the new content hash")
	}
	if len(cs.Removed) != 1 || cs.Removed[0].ID != gone.ID {
		t.Errorf("Removed = %v, want just %s", ids(cs.Removed), gone.ID)
	}
}

func TestDiff_UnchangedProducesNoWork(t *testing.T) {
	a := mkSymbol("A", "func A()", "body a", 1)
	b := mkSymbol("B", "func B()", "body b", 10)

	// Same symbols, different order
	cs := Diff("pkg/server/handler.go", core.LangGo,
		[]core.Symbol{a, b},
		[]core.Symbol{b, a})

	if !cs.Empty() {
		t.Errorf("reordered but unchanged file should yield an empty change set, got %+v", cs)
	}
}

func TestDiff_SortedByID(t *testing.T) {
	var added []core.Symbol
	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		added = append(added, mkSymbol(name, "func "+name+"()", name, 1))
	}

	cs := Diff("pkg/server/handler.go", core.LangGo, nil, added)

	for i := 1; i < len(cs.Added); i++ {
		if cs.Added[i-1].ID > cs.Added[i].ID {
			t.Fatalf("Added not sorted by ID: %v", ids(cs.Added))
		}
	}
}

func ids(syms []core.Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.ID
	}
	return out
}
