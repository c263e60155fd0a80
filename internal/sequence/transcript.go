package sequence

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/facturio/invoice-pipeline/internal/archive"
)

// transcriptLineRe matches the WhatsApp export shape
// "DD/MM/YYYY, HH:MM - Sender: message". Lines that don't match are ignored.
var transcriptLineRe = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{4}),?\s+(\d{1,2}:\d{2})\s*-\s*([^:]+):\s*(.*)$`)

// TranscriptLine is one parsed chat line.
type TranscriptLine struct {
	Timestamp time.Time
	LineNo    int
	Sender    string
	Message   string
}

// ParseTranscript extracts the well-formed lines of a chat log. Garbled lines
// and continuation lines (multi-line messages) are skipped, never an error.
func ParseTranscript(data []byte) []TranscriptLine {
	var lines []TranscriptLine
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	no := 0
	for sc.Scan() {
		no++
		m := transcriptLineRe.FindStringSubmatch(strings.TrimPrefix(sc.Text(), "‎"))
		if m == nil {
			continue
		}
		ts, err := time.Parse("2/1/2006 15:04", m[1]+" "+m[2])
		if err != nil {
			continue
		}
		lines = append(lines, TranscriptLine{
			Timestamp: ts,
			LineNo:    no,
			Sender:    strings.TrimSpace(m[3]),
			Message:   m[4],
		})
	}
	return lines
}

// FindTranscript locates the chat log member: `_chat.txt` by WhatsApp
// convention, otherwise the first .txt member whose leading lines parse as
// transcript lines. Returns -1 when the archive has no transcript.
func FindTranscript(members []archive.Member) int {
	for i, m := range members {
		if strings.EqualFold(filepath.Base(m.Name), "_chat.txt") {
			return i
		}
	}
	for i, m := range members {
		if !strings.EqualFold(filepath.Ext(m.Name), ".txt") {
			continue
		}
		head := m.Data
		if len(head) > 4096 {
			head = head[:4096]
		}
		if len(ParseTranscript(head)) > 0 {
			return i
		}
	}
	return -1
}
