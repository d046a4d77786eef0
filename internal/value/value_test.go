package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+1F600 encodes as the surrogate pair 0xD83D 0xDE00, which sorts
	// before U+FF61 in UTF-16 even though it sorts after it in UTF-8.
	obj := Object{
		"\U0001F600": Int(1),
		"\uFF61":     Int(2),
		"a":          Int(3),
	}
	assert.Equal(t, []string{"a", "\U0001F600", "\uFF61"}, obj.SortedKeys())
}

func TestUnmarshal(t *testing.T) {
	v, err := Unmarshal([]byte(`{"a":[1,"x",true,null],"b":{"c":-2}}`))
	require.NoError(t, err)

	want := Object{
		"a": Array{Int(1), String("x"), Bool(true), Null{}},
		"b": Object{"c": Int(-2)},
	}
	assert.Equal(t, want, v)
}

func TestUnmarshalRejectsFloats(t *testing.T) {
	_, err := Unmarshal([]byte(`{"pi":3.14}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are not supported")
}

func TestMarshalRoundTrip(t *testing.T) {
	in := Object{"list": Array{Int(1), Int(2)}, "name": String("util")}
	b, err := Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"list":[1,2],"name":"util"}`, string(b))

	out, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFromYAMLShapes(t *testing.T) {
	// yaml.v3 decodes integers as int and maps as map[string]any.
	v, err := From(map[string]any{"n": 7, "ok": true, "items": []any{"a"}})
	require.NoError(t, err)
	assert.Equal(t, Object{"n": Int(7), "ok": Bool(true), "items": Array{String("a")}}, v)

	_, err = From(struct{}{})
	require.Error(t, err)
}

func TestNativeAndText(t *testing.T) {
	v := Object{"answer": Int(42)}
	assert.Equal(t, map[string]any{"answer": int64(42)}, Native(v))
	assert.Equal(t, `{"answer":42}`, Text(v))
	assert.Equal(t, "plain", Text(String("plain")))
	assert.Equal(t, "null", Text(nil))
}

func TestHashes(t *testing.T) {
	h1 := SourceHash("export default 1")
	h2 := SourceHash("export default 1")
	h3 := SourceHash("export default 2")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)

	n1, err := NamespaceHash(Object{"a": Int(1), "b": Int(2)})
	require.NoError(t, err)
	n2, err := NamespaceHash(Object{"b": Int(2), "a": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
}
