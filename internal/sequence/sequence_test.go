package sequence

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturio/invoice-pipeline/internal/archive"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleChat = `1/2/2024, 09:30 - Maria: buenos dias
‎1/2/2024, 10:15 - Maria: IMG-20240201-WA0002.jpg (file attached)
this line is a continuation, not a new message
1/2/2024, 10:05 - Jose: IMG-20240201-WA0001.jpg (file attached)
garbage line without any structure
2/2/2024, 08:00 - Maria: DOC-20240202-WA0003.pdf (file attached)
1/2/2024, 11:00 - Jose: missing-from-archive.jpg (file attached)
`

func TestParseTranscript(t *testing.T) {
	lines := ParseTranscript([]byte(sampleChat))
	require.Len(t, lines, 5)

	assert.Equal(t, "Maria", lines[0].Sender)
	assert.Equal(t, "buenos dias", lines[0].Message)
	assert.Equal(t, time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC), lines[0].Timestamp)

	// LRM-prefixed attachment line still parses
	assert.Contains(t, lines[1].Message, "IMG-20240201-WA0002.jpg")
	assert.Equal(t, 2, lines[1].LineNo)
}

func TestParseTranscriptGarbageOnly(t *testing.T) {
	lines := ParseTranscript([]byte("not a chat\nat all\n"))
	assert.Empty(t, lines)
}

func TestFindTranscriptPrefersChatTxt(t *testing.T) {
	members := []archive.Member{
		{Name: "notes.txt", Data: []byte(sampleChat)},
		{Name: "export/_chat.txt", Data: []byte(sampleChat)},
	}
	assert.Equal(t, 1, FindTranscript(members))
}

func TestFindTranscriptFallsBackToParsingTxt(t *testing.T) {
	members := []archive.Member{
		{Name: "readme.txt", Data: []byte("plain notes, no chat shape")},
		{Name: "conversation.txt", Data: []byte(sampleChat)},
		{Name: "IMG-20240201-WA0001.jpg", Data: []byte("img")},
	}
	assert.Equal(t, 1, FindTranscript(members))
}

func TestFindTranscriptNone(t *testing.T) {
	members := []archive.Member{
		{Name: "IMG-20240201-WA0001.jpg", Data: []byte("img")},
	}
	assert.Equal(t, -1, FindTranscript(members))
}

func TestOrderByTranscriptTimestamps(t *testing.T) {
	// Filename order and chronological order disagree on purpose: WA0001 is
	// mentioned at 10:05, WA0002 at 10:15.
	members := []archive.Member{
		{Name: "IMG-20240201-WA0002.jpg", Data: []byte("b")},
		{Name: "unreferenced-scan.pdf", Data: []byte("c")},
		{Name: "IMG-20240201-WA0001.jpg", Data: []byte("a")},
		{Name: "_chat.txt", Data: []byte(sampleChat)},
		{Name: "DOC-20240202-WA0003.pdf", Data: []byte("d")},
	}

	files := Order(members, testLogger())
	require.Len(t, files, 5)

	names := make([]string, len(files))
	for i, f := range files {
		assert.Equal(t, i+1, f.SequenceID)
		names[i] = f.Member.Name
	}
	assert.Equal(t, []string{
		"IMG-20240201-WA0001.jpg", // 10:05
		"IMG-20240201-WA0002.jpg", // 10:15
		"DOC-20240202-WA0003.pdf", // next day
		"_chat.txt",               // unreferenced, filename order
		"unreferenced-scan.pdf",
	}, names)

	// Referenced members carry transcript timestamps.
	require.NotNil(t, files[0].Timestamp)
	require.NotNil(t, files[1].Timestamp)
	assert.True(t, files[0].Timestamp.Before(*files[1].Timestamp))
}

func TestOrderWithoutTranscript(t *testing.T) {
	members := []archive.Member{
		{Name: "b.jpg", Data: []byte("b")},
		{Name: "a.jpg", Data: []byte("a")},
	}
	files := Order(members, testLogger())
	require.Len(t, files, 2)
	assert.Equal(t, "a.jpg", files[0].Member.Name)
	assert.Equal(t, 1, files[0].SequenceID)
	assert.Equal(t, "b.jpg", files[1].Member.Name)
	assert.Equal(t, 2, files[1].SequenceID)
}

func TestOrderEmpty(t *testing.T) {
	assert.Empty(t, Order(nil, testLogger()))
}

func TestFilenameTimestamp(t *testing.T) {
	ts := filenameTimestamp("media/IMG-20240131-WA0007.jpg")
	require.NotNil(t, ts)
	assert.Equal(t, 2024, ts.Year())
	assert.Equal(t, time.January, ts.Month())
	assert.Equal(t, 31, ts.Day())

	// WA counter keeps same-day attachments ordered
	later := filenameTimestamp("IMG-20240131-WA0008.jpg")
	require.NotNil(t, later)
	assert.True(t, ts.Before(*later))

	assert.Nil(t, filenameTimestamp("random.jpg"))
	assert.Nil(t, filenameTimestamp("IMG-20241399-WA0001.jpg")) // impossible date
}
