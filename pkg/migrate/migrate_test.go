package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	src := fstest.MapFS{
		"migrations/002_add_index.sql": {Data: []byte("-- +migrate Up\nCREATE INDEX x ON t (a);\n-- +migrate Down\nDROP INDEX x;\n")},
		"migrations/001_create.sql":    {Data: []byte("-- +migrate Up\nCREATE TABLE t (a INT);\n\n-- +migrate Down\nDROP TABLE t;\n")},
		"migrations/README.md":         {Data: []byte("not a migration")},
	}

	migrations, err := Load(src, "migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE t (a INT);", migrations[0].UpSQL)
	assert.Equal(t, "DROP TABLE t;", migrations[0].DownSQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "add_index", migrations[1].Name)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  fstest.MapFS
	}{
		{"bad version", fstest.MapFS{"m/abc_x.sql": {Data: []byte("SELECT 1;")}}},
		{"no name", fstest.MapFS{"m/001.sql": {Data: []byte("SELECT 1;")}}},
		{"empty up", fstest.MapFS{"m/001_x.sql": {Data: []byte("-- +migrate Down\nDROP TABLE t;")}}},
		{"duplicate version", fstest.MapFS{
			"m/001_a.sql": {Data: []byte("SELECT 1;")},
			"m/1_b.sql":   {Data: []byte("SELECT 2;")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.src, "m")
			assert.Error(t, err)
		})
	}
}

func TestSplit_NoMarkers(t *testing.T) {
	up, down := split("CREATE TABLE t (a INT);\n")
	assert.Equal(t, "CREATE TABLE t (a INT);", up)
	assert.Empty(t, down)
}

func TestPending(t *testing.T) {
	all := []*Migration{{Version: 1}, {Version: 2}, {Version: 3}}

	pending := Pending(all, []int{1, 3})
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)

	assert.Len(t, Pending(all, nil), 3)
	assert.Empty(t, Pending(all, []int{1, 2, 3}))
}
