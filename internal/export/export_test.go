package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/backoffice/internal/grid/column"
)

type brand struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Owner struct {
		Email string `json:"email"`
	} `json:"owner"`
}

func sample() Table {
	defs := []column.Def[brand]{
		{Key: "id", Title: "ID"},
		{Key: "name", Title: "Name"},
		{Key: "owner", Title: "Owner", DataPath: "owner.email"},
	}
	a := brand{ID: 1, Name: "Acme, Inc."}
	a.Owner.Email = "ops@acme.test"
	b := brand{ID: 2, Name: "Globex"}
	return BuildTable("brands", defs, []string{"name", "missing", "owner"}, []brand{a, b})
}

func TestBuildTable(t *testing.T) {
	tbl := sample()
	assert.Equal(t, []string{"Name", "Owner"}, tbl.Headers)
	assert.Equal(t, [][]string{{"Acme, Inc.", "ops@acme.test"}, {"Globex", ""}}, tbl.Rows)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sample()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Name", "Owner"}, {"Acme, Inc.", "ops@acme.test"}, {"Globex", ""}}, records)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sample()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"brands"}, f.GetSheetList())
	rows, err := f.GetRows("brands")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Name", "Owner"}, {"Acme, Inc.", "ops@acme.test"}, {"Globex"}}, rows)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "CSV": FormatCSV, " xlsx ": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorIs(t, Write(&bytes.Buffer{}, Format("pdf"), Table{}), ErrUnsupportedFormat)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Export", SheetName("  "))
	assert.Equal(t, "a_b_c", SheetName("a/b:c"))
	assert.Len(t, []rune(SheetName(strings.Repeat("x", 40))), 31)
}
