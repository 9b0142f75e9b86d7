package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "METHOD", "PATH")
	table.AddRow("GET", "/pets/{key}")
	table.AddRow("DELETE")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"METHOD  PATH",
		"──────  ───────────",
		"GET     /pets/{key}",
		"DELETE",
	}, lines)
}

func TestEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, true).Render()
	assert.Empty(t, buf.String())
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Version", "dev")
	kv.AddRow("Go", "go1.23")
	kv.Render()

	assert.Equal(t, "Version: dev\nGo:      go1.23\n", buf.String())
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)
	p.Success("created %d tables", 4)
	p.Warn("no fixtures")
	p.Error(ErrorOptions{Context: "entity not found", Problem: "Pte", Suggestions: []string{"Pet"}})

	assert.Equal(t, "✓ created 4 tables\n! no fixtures\n✗ ENTITY NOT FOUND: Pte\n   Did you mean: Pet?\n", buf.String())
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"Owner", "Pet", "Specie", "Certification"}

	assert.Equal(t, []string{"Pet"}, FindSimilar("pte", candidates))
	assert.Equal(t, []string{"Specie"}, FindSimilar("Species", candidates))
	assert.Empty(t, FindSimilar("Unicorn", candidates))
}
