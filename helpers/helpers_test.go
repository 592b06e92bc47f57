package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppendSlashUrl(t *testing.T) {
	assert.Equal(t, "/", AppendSlashUrl(""))
	assert.Equal(t, "http://localhost/", AppendSlashUrl("http://localhost"))
	assert.Equal(t, "http://localhost/", AppendSlashUrl("http://localhost/"))
}

func TestMakeUrlWithPort(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8188/", MakeUrlWithPort("http://127.0.0.1", "8188"))
	assert.Equal(t, "http://127.0.0.1/", MakeUrlWithPort("http://127.0.0.1", ""))
}

func TestAge(t *testing.T) {
	assert.Equal(t, "never", Age(time.Time{}))
	assert.Contains(t, Age(time.Now().Add(-90*time.Second)), "minute")
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "abc", Shorten("abc", 10))
	assert.Equal(t, "abcd...", Shorten("abcdefghijk", 7))
}

func TestLinkIndicator(t *testing.T) {
	assert.Equal(t, "[LINKED]", LinkIndicator(true))
	assert.Equal(t, "[VALUE]", LinkIndicator(false))
}
