package decor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataPage = `<!DOCTYPE html><html><head>
<meta name="template" content="Article">
<meta property="og:title" content="T">
<meta name="theme" content="dark">
<meta property="og:title" content="U">
<meta name="tabs-layout" content="wide">
<meta property="tabs:Tab Style" content="x">
</head><body><main></main></body></html>`

func TestGetMetadata(t *testing.T) {
	t.Parallel()
	doc, err := ParseDocument(strings.NewReader(metadataPage))
	require.NoError(t, err)

	assert.Equal(t, "Article", GetMetadata(doc, "template"))
	assert.Equal(t, "T, U", GetMetadata(doc, "og:title"))
	assert.Equal(t, "", GetMetadata(doc, "missing"))
	assert.Equal(t, "", GetMetadata(doc, "title"))
}

func TestGetAllMetadata(t *testing.T) {
	t.Parallel()
	doc, err := ParseDocument(strings.NewReader(metadataPage))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"layout": "wide", "tab-style": "x"}, GetAllMetadata(doc, "tabs"))
	assert.Equal(t, map[string]string{"title": "U"}, GetAllMetadata(doc, "og"))
	assert.Empty(t, GetAllMetadata(doc, "none"))
}
