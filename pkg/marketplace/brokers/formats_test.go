package brokers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantItems int
		wantPages int
		wantErr   bool
	}{
		{name: "with pages", body: `{"listings":[{},{}],"total_pages":4}`, wantItems: 2, wantPages: 4},
		{name: "pages default to one", body: `{"listings":[]}`, wantItems: 0, wantPages: 1},
		{name: "zero pages", body: `{"listings":[],"total_pages":0}`, wantItems: 0, wantPages: 1},
		{name: "missing items", body: `{"results":[]}`, wantErr: true},
		{name: "items not an array", body: `{"listings":{}}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, pages, err := SkillMeatFormat{}.ParsePage([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.wantItems)
			assert.Equal(t, tt.wantPages, pages)
		})
	}
}

func TestSchemaFormat(t *testing.T) {
	f := &SchemaFormat{}
	assert.False(t, f.Loaded())

	// without a mapping it is the generic shape
	fields, err := f.ParseListing([]byte(`{"listing_id":"a","name":"A","publisher":"p"}`))
	require.NoError(t, err)
	assert.Equal(t, "a", fields.ListingID)

	f.SetFields(map[string]string{
		"listings":    "results",
		"total_pages": "pages",
		"listing_id":  "id",
		"publisher":   "name",
		"name":        "title",
	})
	assert.True(t, f.Loaded())

	items, pages, err := f.ParsePage([]byte(`{"results":[{"id":"x"}],"pages":3}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 3, pages)

	// a native name that is also a listing field name is still remapped
	fields, err = f.ParseListing([]byte(`{"id":"x","title":"Shown","name":"owner","license":"MIT"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", fields.ListingID)
	assert.Equal(t, "Shown", fields.Name)
	assert.Equal(t, "owner", fields.Publisher)
	assert.Equal(t, "MIT", fields.License)
}
