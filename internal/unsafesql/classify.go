// Package unsafesql classifies raw SQL text arriving through
// access.Client.Unsafe, grounded on pkg/parser/adapter.go's use of the
// TiDB SQL parser. Unlike that adapter, which converts every statement
// kind into a full custom AST, this package only answers two questions
// the Unsafe boundary actually needs: what kind of statement is this
// (for the Schema Catalog invalidation decision), and is the body a
// single statement (multi-statement bodies are rejected outright, since
// the catalog-invalidation and result-shape contracts only make sense
// for one statement at a time).
package unsafesql

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// Kind categorizes a single parsed statement.
type Kind int

const (
	KindUnknown Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindCreateTable
	KindDropTable
	KindCreateView
	KindDropView
	KindTruncateTable
	KindAlterTable
	KindCreateIndex
	KindDropIndex
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	case KindCreateTable:
		return "CREATE_TABLE"
	case KindDropTable:
		return "DROP_TABLE"
	case KindCreateView:
		return "CREATE_VIEW"
	case KindDropView:
		return "DROP_VIEW"
	case KindTruncateTable:
		return "TRUNCATE_TABLE"
	case KindAlterTable:
		return "ALTER_TABLE"
	case KindCreateIndex:
		return "CREATE_INDEX"
	case KindDropIndex:
		return "DROP_INDEX"
	case KindOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// IsDDL reports whether a statement kind is schema-altering and
// therefore requires a Schema Catalog invalidation after it runs.
func (k Kind) IsDDL() bool {
	switch k {
	case KindCreateTable, KindDropTable, KindCreateView, KindDropView,
		KindTruncateTable, KindAlterTable, KindCreateIndex, KindDropIndex:
		return true
	default:
		return false
	}
}

// Classifier wraps a TiDB SQL parser. It is not safe for concurrent use
// across goroutines without external synchronization, matching the
// underlying parser.Parser's own contract; callers should keep one
// Classifier per goroutine or guard it with a mutex.
type Classifier struct {
	parser *parser.Parser
}

// New returns a ready-to-use Classifier.
func New() *Classifier {
	return &Classifier{parser: parser.New()}
}

// Classify parses sqlText and reports its statement Kind. It returns an
// error if sqlText fails to parse, contains zero statements, or contains
// more than one statement — Unsafe only accepts a single statement per
// call, and a naive substring check can't reliably enforce that (a
// semicolon can legally appear inside a string literal).
func (c *Classifier) Classify(sqlText string) (Kind, error) {
	stmtNodes, _, err := c.parser.Parse(sqlText, "", "")
	if err != nil {
		return KindUnknown, fmt.Errorf("unsafesql: parse failed: %w", err)
	}
	if len(stmtNodes) == 0 {
		return KindUnknown, fmt.Errorf("unsafesql: no statement found")
	}
	if len(stmtNodes) > 1 {
		return KindUnknown, fmt.Errorf("unsafesql: multi-statement bodies are rejected (%d statements found)", len(stmtNodes))
	}
	return kindOf(stmtNodes[0]), nil
}

// IsDDL is a convenience wrapper around Classify for callers that only
// care whether the statement requires a catalog invalidation.
func (c *Classifier) IsDDL(sqlText string) (bool, error) {
	kind, err := c.Classify(sqlText)
	if err != nil {
		return false, err
	}
	return kind.IsDDL(), nil
}

func kindOf(node ast.StmtNode) Kind {
	switch n := node.(type) {
	case *ast.SelectStmt:
		return KindSelect
	case *ast.InsertStmt:
		return KindInsert
	case *ast.UpdateStmt:
		return KindUpdate
	case *ast.DeleteStmt:
		return KindDelete
	case *ast.CreateTableStmt:
		return KindCreateTable
	case *ast.DropTableStmt:
		// TiDB reuses DropTableStmt for both DROP TABLE and DROP VIEW;
		// IsView distinguishes the two.
		if n.IsView {
			return KindDropView
		}
		return KindDropTable
	case *ast.TruncateTableStmt:
		return KindTruncateTable
	case *ast.AlterTableStmt:
		return KindAlterTable
	case *ast.CreateIndexStmt:
		return KindCreateIndex
	case *ast.DropIndexStmt:
		return KindDropIndex
	case *ast.CreateViewStmt:
		return KindCreateView
	default:
		return KindOther
	}
}

// LooksLikeDDL is a best-effort fallback for contexts where constructing
// a Classifier is impractical (e.g. a hot loop that already classified
// the statement elsewhere and only wants a quick re-check). Prefer
// Classifier.IsDDL; this only checks the leading keyword and cannot
// reject multi-statement bodies.
func LooksLikeDDL(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	upper := strings.ToUpper(trimmed)
	for _, kw := range []string{"CREATE", "ALTER", "DROP", "TRUNCATE"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}
