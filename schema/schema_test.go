package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	reg, err := LoadFile("testdata/blog.yaml")
	require.NoError(t, err)

	assert.Equal(t, "blog-1", reg.Version())
	assert.Equal(t, []string{
		"api::article.article",
		"api::author.author",
		"api::tag.tag",
		"blocks.gallery",
		"blocks.quote",
		"shared.seo",
	}, reg.UIDs())

	article, ok := reg.Get("api::article.article")
	require.True(t, ok)

	tags, ok := article.Field("tags")
	require.True(t, ok)
	assert.Equal(t, KindRelation, tags.Kind)
	assert.True(t, tags.Multiple)

	blocks, ok := article.Field("blocks")
	require.True(t, ok)
	assert.Equal(t, []string{"blocks.quote", "blocks.gallery"}, blocks.Components)

	_, ok = reg.Get("api::missing.missing")
	assert.False(t, ok)
}

// TestLoad_DigestVersion 未声明版本时内容不同则版本不同
func TestLoad_DigestVersion(t *testing.T) {
	a, err := Load(strings.NewReader("types:\n  - uid: a\n    fields: []\n"))
	require.NoError(t, err)
	b, err := Load(strings.NewReader("types:\n  - uid: b\n    fields: []\n"))
	require.NoError(t, err)

	assert.NotEmpty(t, a.Version())
	assert.NotEqual(t, a.Version(), b.Version())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "types: [\n"},
		{"missing uid", "types:\n  - fields: []\n"},
		{"unknown kind", "types:\n  - uid: a\n    fields:\n      - name: x\n        type: blob\n"},
		{"relation without target", "types:\n  - uid: a\n    fields:\n      - name: x\n        type: relation\n"},
		{"duplicate field", "types:\n  - uid: a\n    fields:\n      - name: x\n        type: scalar\n      - name: x\n        type: scalar\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestFieldKind(t *testing.T) {
	assert.True(t, KindMedia.Expandable())
	assert.False(t, KindScalar.Expandable())
	assert.False(t, FieldKind("blob").Valid())
}

// TestRegister_CopiesFields 注册后修改原切片不影响注册表
func TestRegister_CopiesFields(t *testing.T) {
	fields := []Field{{Name: "title", Kind: KindScalar}}
	reg := MustRegistry("v1", EntityType{UID: "a", Fields: fields})

	fields[0].Name = "mutated"
	got, _ := reg.Get("a")
	assert.Equal(t, "title", got.Fields[0].Name)
}
