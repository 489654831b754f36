package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeURI(t *testing.T) {
	assert.Equal(t, "/a%20b/c%23d", EncodeURI("/a b/c#d"))
	assert.Equal(t, "https://example.com/x%20y/", EncodeURI("https://example.com/x y/"))
	assert.Equal(t, "https://example.com", EncodeURI("https://example.com"))
}

func TestFormatURLDirectory(t *testing.T) {
	assert.Equal(t, "/files/", FormatURLDirectory("files"))
	assert.Equal(t, "/", FormatURLDirectory(""))
	assert.Equal(t, "http://cdn.local/", FormatURLDirectory("http://cdn.local"))
}

func TestURLGenerator(t *testing.T) {
	g := URLGenerator{Root: "/data", Webroot: "/files/", BrowserBase: "/browse"}

	u, err := g.DataURL("/data/sub dir/a.txt", false)
	require.NoError(t, err)
	assert.Equal(t, "/files/sub%20dir/a.txt", u)

	u, err = g.DataURL("/data/site", true)
	require.NoError(t, err)
	assert.Equal(t, "/files/site/", u)

	u, err = g.BrowserURL("/data/sub")
	require.NoError(t, err)
	assert.Equal(t, "/browse/sub/", u)

	u, err = g.BrowserURL("/data")
	require.NoError(t, err)
	assert.Equal(t, "/browse/", u)

	assert.Equal(t, "/browse/cache/0011/root.zip", g.CacheURL("0011/root.zip"))

	_, err = g.BrowserURL("/elsewhere")
	assert.Error(t, err)
}
