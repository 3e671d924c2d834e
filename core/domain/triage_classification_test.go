package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name       string
		useRemote  bool
		credential string
		want       OperatingMode
	}{
		{name: "remote with credential", useRemote: true, credential: "hf_x", want: ModeRemote},
		{name: "remote without credential", useRemote: true, credential: "", want: ModeLocal},
		{name: "local with credential", useRemote: false, credential: "hf_x", want: ModeLocal},
		{name: "nothing configured", want: ModeLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMode(tt.useRemote, tt.credential))
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("Produtivo")
	require.NoError(t, err)
	assert.Equal(t, CategoryProductive, c)

	c, err = ParseCategory("Improdutivo")
	require.NoError(t, err)
	assert.Equal(t, CategoryNonProductive, c)

	_, err = ParseCategory("produtivo")
	assert.Error(t, err)
	_, err = ParseCategory("")
	assert.Error(t, err)
}

func TestTemplateReply(t *testing.T) {
	assert.Equal(t, ProductiveReply, TemplateReply(CategoryProductive))
	assert.Equal(t, NonProductiveReply, TemplateReply(CategoryNonProductive))
	assert.Equal(t, NonProductiveReply, TemplateReply(Category("other")))
	assert.NotEqual(t, ProductiveReply, NonProductiveReply)
}
