package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrowserHeaders(t *testing.T) {
	headers := BrowserHeaders("test-agent")

	assert.Equal(t, "test-agent", headers["User-Agent"])
	assert.NotEmpty(t, headers["Accept"])
	assert.NotEmpty(t, headers["Accept-Language"])
	assert.Contains(t, referers, headers["Referer"])
}

func TestDecodeUTF8PassesThroughUTF8(t *testing.T) {
	body := []byte("<html><body>Обогреватель</body></html>")

	decoded, err := DecodeUTF8(body, "text/html; charset=utf-8")
	assert.NoError(t, err)
	assert.Equal(t, body, decoded)
}

func TestDecodeUTF8Windows1251(t *testing.T) {
	// "Цена" in windows-1251
	body := append([]byte("<html><body>"), 0xD6, 0xE5, 0xED, 0xE0)
	body = append(body, []byte("</body></html>")...)

	decoded, err := DecodeUTF8(body, "text/html; charset=windows-1251")
	assert.NoError(t, err)
	assert.Contains(t, string(decoded), "Цена")
}

func TestDecodeUTF8MetaCharset(t *testing.T) {
	body := []byte(`<html><head><meta charset="iso-8859-1"></head><body>Hello, World!</body></html>`)

	decoded, err := DecodeUTF8(body, "text/html")
	assert.NoError(t, err)
	assert.Contains(t, string(decoded), "Hello, World!")
}
