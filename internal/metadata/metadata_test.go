package metadata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedAssembler() *Assembler {
	a := NewAssembler()
	a.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestAddAttributeRequiresBothFields(t *testing.T) {
	a := NewAssembler()
	require.NoError(t, a.AddAttribute("color", "red"))

	require.ErrorIs(t, a.AddAttribute("", "x"), ErrMissingField)
	require.ErrorIs(t, a.AddAttribute("x", ""), ErrMissingField)
	require.ErrorIs(t, a.AddAttribute("   ", "x"), ErrMissingField)
	assert.Equal(t, 1, a.Len())
}

func TestAddAttributeTrimsAndKeepsDuplicates(t *testing.T) {
	a := NewAssembler()
	require.NoError(t, a.AddAttribute(" color ", " red "))
	require.NoError(t, a.AddAttribute("color", "blue"))

	assert.Equal(t, []Attribute{
		{Name: "color", Value: "red"},
		{Name: "color", Value: "blue"},
	}, a.Attributes())
}

func TestRemoveAttribute(t *testing.T) {
	a := NewAssembler()
	for _, v := range []string{"a", "b", "c", "d"} {
		require.NoError(t, a.AddAttribute("k", v))
	}

	require.ErrorIs(t, a.RemoveAttribute(4), ErrIndexOutOfRange)
	require.ErrorIs(t, a.RemoveAttribute(-1), ErrIndexOutOfRange)
	assert.Equal(t, 4, a.Len())

	require.NoError(t, a.RemoveAttribute(1))
	got := a.Attributes()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Value)
	assert.Equal(t, "c", got[1].Value)
	assert.Equal(t, "d", got[2].Value)
}

func TestAttributesReturnsCopy(t *testing.T) {
	a := NewAssembler()
	require.NoError(t, a.AddAttribute("k", "v"))
	got := a.Attributes()
	got[0].Value = "changed"
	assert.Equal(t, "v", a.Attributes()[0].Value)
}

func TestAssemble(t *testing.T) {
	a := fixedAssembler()
	require.NoError(t, a.AddAttribute("lens", "wide"))

	rec, err := a.Assemble(" Harbor ", "Boats at dawn", "0.05", "data:image/jpeg;base64,AA==")
	require.NoError(t, err)
	assert.Equal(t, "Harbor", rec.Name)
	assert.Equal(t, "0.05", rec.Price)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), rec.CreatedAt)
	assert.Equal(t, []Attribute{{Name: "lens", Value: "wide"}}, rec.Attributes)

	// later edits to the form do not leak into an assembled record
	require.NoError(t, a.AddAttribute("iso", "100"))
	assert.Len(t, rec.Attributes, 1)
}

func TestAssembleMissingFields(t *testing.T) {
	a := fixedAssembler()
	cases := []struct {
		title, description, price, image string
		field                            string
	}{
		{"", "d", "1", "img", "title"},
		{"t", " ", "1", "img", "description"},
		{"t", "d", "", "img", "price"},
		{"t", "d", "1", "", "image"},
	}
	for _, c := range cases {
		_, err := a.Assemble(c.title, c.description, c.price, c.image)
		require.ErrorIs(t, err, ErrMissingField)
		assert.Contains(t, err.Error(), c.field)
	}
}

func TestRecordJSONFields(t *testing.T) {
	a := fixedAssembler()
	require.NoError(t, a.AddAttribute("lens", "wide"))
	rec, err := a.Assemble("t", "d", "1", "data:x")
	require.NoError(t, err)

	raw, err := rec.JSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"name", "description", "price", "image", "attributes", "created_at"} {
		assert.Contains(t, doc, key)
	}
	attrs := doc["attributes"].([]any)
	assert.Equal(t, map[string]any{"trait_type": "lens", "value": "wide"}, attrs[0])
}

func TestWithImageLeavesOriginal(t *testing.T) {
	rec := Record{Name: "t", Image: "data:x", Attributes: []Attribute{{Name: "a", Value: "b"}}}
	out := rec.WithImage("ipfs://Qm")
	out.Attributes[0].Value = "z"

	assert.Equal(t, "data:x", rec.Image)
	assert.Equal(t, "b", rec.Attributes[0].Value)
	assert.Equal(t, "ipfs://Qm", out.Image)
}
