package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-librarian/server/internal/catalog"
)

func testStore() *catalog.Store {
	return catalog.NewStore(nil, []catalog.ExtendedBook{
		{Title: "The Hobbit", Summary: "Long summary of The Hobbit."},
		{Title: "Război și Pace", Summary: "Long summary of War and Peace."},
	})
}

func TestSummariesTool(t *testing.T) {
	tl := NewSummariesTool(testStore())

	args, _ := json.Marshal(SummariesInput{Titles: []string{"the hobbit", "Unknown Book", "razboi si pace"}})
	raw, err := tl.InvokableRun(context.Background(), string(args))
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	assert.Equal(t, "Long summary of The Hobbit.", out["the hobbit"])
	assert.Equal(t, catalog.NotFound, out["Unknown Book"])
	assert.Equal(t, "Long summary of War and Peace.", out["razboi si pace"], "diacritics-insensitive lookup")
}

func TestSummariesToolEmptyTitles(t *testing.T) {
	tl := NewSummariesTool(testStore())

	raw, err := tl.InvokableRun(context.Background(), `{"titles": []}`)
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	assert.Empty(t, out)
}

func TestSummariesToolInfo(t *testing.T) {
	info := SummariesToolInfo()
	assert.Equal(t, SummariesToolName, info.Name)
	assert.NotNil(t, info.ParamsOneOf)
}
