package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown(t *testing.T) {
	t.Run("basic rendering", func(t *testing.T) {
		out, err := RenderMarkdown("# Title\n\nsome *text*\n")
		require.NoError(t, err)
		assert.Contains(t, out, "<h1")
		assert.Contains(t, out, "<em>text</em>")
	})

	t.Run("script elements are removed", func(t *testing.T) {
		out, err := RenderMarkdown("hello\n\n<script>alert(1)</script>\n")
		require.NoError(t, err)
		assert.NotContains(t, out, "<script")
		assert.NotContains(t, out, "alert(1)")
		assert.Contains(t, out, "hello")
	})

	t.Run("event handler attributes are removed", func(t *testing.T) {
		out, err := RenderMarkdown(`<p onclick="steal()">click me</p>`)
		require.NoError(t, err)
		assert.NotContains(t, out, "onclick")
		assert.Contains(t, out, "click me")
	})

	t.Run("javascript hrefs are removed", func(t *testing.T) {
		out, err := RenderMarkdown(`<a href="javascript:alert(1)">link</a>`)
		require.NoError(t, err)
		assert.NotContains(t, out, "javascript:")
		assert.Contains(t, out, "link")
	})

	t.Run("invalid utf8 is rejected", func(t *testing.T) {
		_, err := RenderMarkdown("bad \xff byte")
		assert.Error(t, err)
	})
}

func TestFixLineEndings(t *testing.T) {
	assert.Equal(t, "a\nb\n", fixLineEndings("a\r\nb\r\n"))
	assert.Equal(t, "a\nb", fixLineEndings("a   \nb"))
	assert.Equal(t, "a\n", fixLineEndings("a\n\n\n"))
}
