package unsafesql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_StatementKinds(t *testing.T) {
	c := New()

	cases := []struct {
		sql  string
		kind Kind
		ddl  bool
	}{
		{"SELECT * FROM widgets WHERE id = 1", KindSelect, false},
		{"INSERT INTO widgets (name) VALUES ('a')", KindInsert, false},
		{"UPDATE widgets SET name = 'b' WHERE id = 1", KindUpdate, false},
		{"DELETE FROM widgets WHERE id = 1", KindDelete, false},
		{"CREATE TABLE widgets (id INT PRIMARY KEY, name VARCHAR(64))", KindCreateTable, true},
		{"DROP TABLE widgets", KindDropTable, true},
		{"DROP VIEW widgets_view", KindDropView, true},
		{"CREATE VIEW widgets_view AS SELECT * FROM widgets", KindCreateView, true},
		{"TRUNCATE TABLE widgets", KindTruncateTable, true},
		{"ALTER TABLE widgets ADD COLUMN qty INT", KindAlterTable, true},
		{"CREATE INDEX idx_name ON widgets (name)", KindCreateIndex, true},
		{"DROP INDEX idx_name ON widgets", KindDropIndex, true},
	}

	for _, tc := range cases {
		t.Run(tc.sql, func(t *testing.T) {
			kind, err := c.Classify(tc.sql)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.ddl, kind.IsDDL())
		})
	}
}

func TestClassify_RejectsMultiStatement(t *testing.T) {
	c := New()
	_, err := c.Classify("SELECT 1; SELECT 2;")
	assert.Error(t, err)
}

func TestClassify_RejectsEmptyBody(t *testing.T) {
	c := New()
	_, err := c.Classify("   ")
	assert.Error(t, err)
}

func TestClassify_RejectsInvalidSQL(t *testing.T) {
	c := New()
	_, err := c.Classify("SELEKT * FORM widgets")
	assert.Error(t, err)
}

func TestIsDDL_Convenience(t *testing.T) {
	c := New()

	ddl, err := c.IsDDL("ALTER TABLE widgets DROP COLUMN qty")
	require.NoError(t, err)
	assert.True(t, ddl)

	ddl, err = c.IsDDL("SELECT * FROM widgets")
	require.NoError(t, err)
	assert.False(t, ddl)
}

func TestLooksLikeDDL(t *testing.T) {
	assert.True(t, LooksLikeDDL("  create table widgets (id int)"))
	assert.True(t, LooksLikeDDL("DROP TABLE widgets"))
	assert.False(t, LooksLikeDDL("SELECT * FROM widgets"))
}
