package importer

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventguard/internal/model"
)

func fixedIDs(t *testing.T, ids ...string) {
	t.Helper()
	orig := newID
	i := 0
	newID = func() string {
		id := ids[i]
		i++
		return id
	}
	t.Cleanup(func() { newID = orig })
}

func TestFromRows_Positional(t *testing.T) {
	fixedIDs(t, "GENERATED")

	res := FromRows([][]string{
		{"Alice", "alice@example.com", "A1", "VIP"},
		{" Bob ", " bob@example.com "},
		{"", "", "", ""},
		{"Carol"},
	})

	assert.Equal(t, 1, res.Failed, "blank rows are skipped, rows without email fail")
	require.Len(t, res.Guests, 2)
	assert.Equal(t, model.Guest{ID: "A1", Name: "Alice", Email: "alice@example.com", Category: "VIP"}, res.Guests[0])
	assert.Equal(t, model.Guest{ID: "GENERATED", Name: "Bob", Email: "bob@example.com", Category: model.DefaultCategory}, res.Guests[1])
}

func TestFromRows_Header(t *testing.T) {
	res := FromRows([][]string{
		{"Category", "E-mail", "Full Name", "Ticket ID"},
		{"VIP", "alice@example.com", "Alice", "A1"},
	})

	// "E-mail" does not contain "email", so email falls back to column 1.
	require.Len(t, res.Guests, 1)
	assert.Equal(t, "Alice", res.Guests[0].Name)
	assert.Equal(t, "alice@example.com", res.Guests[0].Email)
	assert.Equal(t, "A1", res.Guests[0].ID)
	assert.Equal(t, "VIP", res.Guests[0].Category)
}

func TestFromRows_EmailIDColumnIsNotTheTicket(t *testing.T) {
	cols, ok := detectHeader([]string{"Name", "Email ID", "ID", "Type", "Phone"})
	require.True(t, ok)
	assert.Equal(t, columns{name: 0, email: 1, id: 2, category: 3, phone: 4}, cols)

	_, ok = detectHeader([]string{"Alice", "alice@example.com"})
	assert.False(t, ok)
}

func TestFromRows_Empty(t *testing.T) {
	res := FromRows(nil)
	assert.NotNil(t, res.Guests)
	assert.Empty(t, res.Guests)
	assert.Zero(t, res.Failed)
}

func TestNewID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-Z]{9}$`)
	seen := make(map[string]bool)
	for range 100 {
		id := newID()
		assert.Regexp(t, pattern, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 90)
}

func TestReadCSV_QuotedAndRagged(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("\"Smith, Jane\",jane@example.com\nBob,bob@example.com,B2,Staff\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Smith, Jane", "jane@example.com"}, rows[0])
	assert.Len(t, rows[1], 4)
}

func TestFile_CSV(t *testing.T) {
	fixedIDs(t, "GENERATED")

	res, err := File(filepath.Join("testdata", "guests.csv"))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Guests, 2)
	assert.Equal(t, model.Guest{
		ID: "A1", Name: "Alice", Email: "alice@example.com", Category: "VIP", Phone: "+40 721 234 567",
	}, res.Guests[0])
	assert.Equal(t, "GENERATED", res.Guests[1].ID)
	assert.Equal(t, model.DefaultCategory, res.Guests[1].Category)
}

func TestFile_CUE(t *testing.T) {
	res, err := File(filepath.Join("testdata", "guests.cue"))
	require.NoError(t, err)

	require.Len(t, res.Guests, 2)
	assert.Equal(t, "VIP", res.Guests[0].Category)
	assert.Equal(t, "alice@example.com", res.Guests[0].Email)
	assert.Equal(t, model.DefaultCategory, res.Guests[1].Category)
}

func TestFromCUE_RejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing name", `guests: [{id: "A1"}]`},
		{"empty id", `guests: [{id: "", name: "Alice"}]`},
		{"unknown field", `guests: [{id: "A1", name: "Alice", seat: "12"}]`},
		{"syntax", `guests: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromCUE([]byte(tt.src), "bad.cue")
			assert.Error(t, err)
		})
	}
}

func TestFile_YAML(t *testing.T) {
	fixedIDs(t, "GENERATED")

	res, err := File(filepath.Join("testdata", "guests.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed, "an entry without a name fails")
	require.Len(t, res.Guests, 2)
	assert.Equal(t, "A1", res.Guests[0].ID)
	assert.Equal(t, "GENERATED", res.Guests[1].ID)
	assert.Equal(t, "Bob", res.Guests[1].Name)
}

func TestFromYAML_List(t *testing.T) {
	res, err := FromYAML([]byte("- id: A1\n  name: Alice\n"))
	require.NoError(t, err)
	require.Len(t, res.Guests, 1)
	assert.Equal(t, model.DefaultCategory, res.Guests[0].Category)

	res, err = FromYAML(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Guests)

	_, err = FromYAML([]byte("just a string"))
	assert.Error(t, err)
}

func TestFile_JSON(t *testing.T) {
	res, err := File(filepath.Join("testdata", "guests.json"))
	require.NoError(t, err)

	require.Len(t, res.Guests, 2)
	assert.Nil(t, res.Guests[0].CheckInDay1, "imported guests start checked out")
	assert.Equal(t, model.DefaultCategory, res.Guests[1].Category)
}

func TestFromJSON_Object(t *testing.T) {
	res, err := FromJSON([]byte(` {"guests": [{"id": "A1", "name": "Alice"}]}`))
	require.NoError(t, err)
	require.Len(t, res.Guests, 1)

	_, err = FromJSON([]byte(`{"guests": 3}`))
	assert.Error(t, err)
}

func TestFile_Errors(t *testing.T) {
	_, err := File(filepath.Join("testdata", "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "guests.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err = File(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
