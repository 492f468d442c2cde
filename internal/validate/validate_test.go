package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathValid(t *testing.T) {
	assert.NoError(t, Path("/downloads/file.mp4"))
	assert.NoError(t, Path("/file.txt"))
}

func TestPathEmpty(t *testing.T) {
	err := Path("")
	assert.Error(t, err)
	assert.ErrorContains(t, err, "empty")
}

func TestPathRelative(t *testing.T) {
	assert.Error(t, Path("relative/path.txt"))
	assert.Error(t, Path("file.txt"))
}

func TestPathWithoutFilename(t *testing.T) {
	assert.Error(t, Path("/"))
}

func TestURLValid(t *testing.T) {
	assert.NoError(t, URL("https://example.com/file.mp4"))
	assert.NoError(t, URL("http://example.com/file.mp4"))
	assert.NoError(t, URL("https://example.com:8080/file.mp4"))
	assert.NoError(t, URL("https://example.com/file.mp4?token=abc"))
	assert.NoError(t, URL("https://example.com"))
}

func TestURLEmpty(t *testing.T) {
	err := URL("")
	assert.Error(t, err)
	assert.ErrorContains(t, err, "empty")
}

func TestURLInvalidScheme(t *testing.T) {
	assert.Error(t, URL("ftp://example.com/file.mp4"))
	assert.Error(t, URL("file:///path/to/file.mp4"))
	assert.Error(t, URL("ws://example.com/socket"))
	assert.Error(t, URL("data:text/plain,hello"))
}

func TestURLMissingHost(t *testing.T) {
	assert.Error(t, URL("https:///file.mp4"))
}

func TestURLInvalidFormat(t *testing.T) {
	assert.Error(t, URL("not a valid url"))
}
