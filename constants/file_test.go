package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyName(t *testing.T) {
	assert.Equal(t, IMAGE, ClassifyName("IMG-20240131-WA0001.jpg"))
	assert.Equal(t, IMAGE, ClassifyName("photo.JPEG"))
	assert.Equal(t, DOCUMENT, ClassifyName("factura.pdf"))
	assert.Equal(t, TEXT, ClassifyName("_chat.txt"))
	assert.Equal(t, UNSUPPORTED, ClassifyName("clip.mp4"))
	assert.Equal(t, UNSUPPORTED, ClassifyName("noextension"))
}

func TestMediaTypeMatches(t *testing.T) {
	assert.True(t, MediaTypeMatches(IMAGE, "image/jpeg"))
	assert.True(t, MediaTypeMatches(TEXT, "text/plain; charset=utf-8"))
	assert.True(t, MediaTypeMatches(DOCUMENT, "application/pdf"))

	assert.False(t, MediaTypeMatches(IMAGE, "application/pdf"))
	assert.False(t, MediaTypeMatches(UNSUPPORTED, "video/mp4"))
}

func TestIsIrrelevantName(t *testing.T) {
	assert.True(t, IsIrrelevantName("sticker-pack-01.webp"))
	assert.True(t, IsIrrelevantName("PTT-20240131-WA0002.opus"))
	assert.True(t, IsIrrelevantName("thumbnail_small.jpg"))
	assert.True(t, IsIrrelevantName("Song.MP3"))

	assert.False(t, IsIrrelevantName("IMG-20240131-WA0001.jpg"))
	assert.False(t, IsIrrelevantName("factura.pdf"))
}

func TestNormalizeExt(t *testing.T) {
	assert.Equal(t, "jpg", NormalizeExt(".JPG"))
	assert.Equal(t, "pdf", NormalizeExt("pdf"))
	assert.Equal(t, "", NormalizeExt("."))
}
