package ormbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrator_AddAndDropColumn(t *testing.T) {
	c := newBridgeHarness(t)
	gdb := openGorm(t, c)
	require.NoError(t, gdb.AutoMigrate(&Widget{}))

	m := gdb.Migrator()
	// AutoMigrate already created qty, so drop it before adding it back.
	require.NoError(t, m.DropColumn(&Widget{}, "qty"))
	assert.False(t, m.HasColumn(&Widget{}, "qty"))

	require.NoError(t, m.AddColumn(&Widget{}, "qty"))
	assert.True(t, m.HasColumn(&Widget{}, "qty"))
}

func TestMigrator_RenameTable(t *testing.T) {
	c := newBridgeHarness(t)
	gdb := openGorm(t, c)
	require.NoError(t, gdb.AutoMigrate(&Widget{}))

	m := gdb.Migrator()
	require.NoError(t, m.RenameTable("widgets", "widgets_renamed"))

	_, err := c.TableSchema("widgets")
	assert.Error(t, err)
	_, err = c.TableSchema("widgets_renamed")
	assert.NoError(t, err)
}

func TestMigrator_GetTables(t *testing.T) {
	c := newBridgeHarness(t)
	gdb := openGorm(t, c)
	require.NoError(t, gdb.AutoMigrate(&Widget{}))

	tables, err := gdb.Migrator().GetTables()
	require.NoError(t, err)
	assert.Contains(t, tables, "widgets")
}

func TestMigrator_IndexLifecycle(t *testing.T) {
	c := newBridgeHarness(t)
	gdb := openGorm(t, c)
	require.NoError(t, gdb.AutoMigrate(&Widget{}))

	m := gdb.Migrator()
	assert.False(t, m.HasIndex(&Widget{}, "idx_widgets_name"))
	require.NoError(t, m.CreateIndex(&Widget{}, "idx_widgets_name"))
	require.NoError(t, m.DropIndex(&Widget{}, "idx_widgets_name"))
}
