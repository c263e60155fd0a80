package sequence

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/facturio/invoice-pipeline/internal/archive"
)

// File is an archive member with its assigned position in the job.
// SequenceID is dense 1..N and is the sole correlation key carried through
// the concurrent stages.
type File struct {
	Member     archive.Member
	SequenceID int
	Timestamp  *time.Time
}

// waNameRe matches WhatsApp attachment names like IMG-20240131-WA0007.jpg.
var waNameRe = regexp.MustCompile(`(?:IMG|VID|AUD|DOC|PTT)-(\d{4})(\d{2})(\d{2})-WA(\d{4})`)

// Order derives the chronological order of the members and assigns sequence
// ids. Members referenced by the transcript come first, in ascending
// timestamp order with ties broken by transcript line order; everything else
// follows sorted by filename. A missing transcript degrades to filename-sort
// for all members — never an error.
func Order(members []archive.Member, logger *slog.Logger) []File {
	if logger == nil {
		logger = slog.Default()
	}

	var lines []TranscriptLine
	if ti := FindTranscript(members); ti >= 0 {
		lines = ParseTranscript(members[ti].Data)
		logger.Info("transcript located",
			"filename", members[ti].Name, "parsed_lines", len(lines))
	} else {
		logger.Info("no transcript in archive, falling back to filename order")
	}

	type matched struct {
		member archive.Member
		ts     time.Time
		lineNo int
	}
	var (
		referenced   []matched
		unreferenced []archive.Member
	)
	for _, m := range members {
		if line, ok := findReference(m.Name, lines); ok {
			referenced = append(referenced, matched{member: m, ts: line.Timestamp, lineNo: line.LineNo})
		} else {
			unreferenced = append(unreferenced, m)
		}
	}

	sort.SliceStable(referenced, func(i, j int) bool {
		if !referenced[i].ts.Equal(referenced[j].ts) {
			return referenced[i].ts.Before(referenced[j].ts)
		}
		return referenced[i].lineNo < referenced[j].lineNo
	})
	sort.SliceStable(unreferenced, func(i, j int) bool {
		return unreferenced[i].Name < unreferenced[j].Name
	})

	files := make([]File, 0, len(members))
	for _, r := range referenced {
		ts := r.ts
		files = append(files, File{Member: r.member, SequenceID: len(files) + 1, Timestamp: &ts})
	}
	for _, m := range unreferenced {
		files = append(files, File{Member: m, SequenceID: len(files) + 1, Timestamp: filenameTimestamp(m.Name)})
	}

	for _, f := range files {
		logger.Debug("sequence assigned",
			"filename", f.Member.Name, "sequence_id", f.SequenceID,
			"has_timestamp", f.Timestamp != nil)
	}
	return files
}

// findReference returns the first transcript line embedding the member's base
// filename. Transcript references to files absent from the archive simply
// never come up here.
func findReference(name string, lines []TranscriptLine) (TranscriptLine, bool) {
	base := filepath.Base(name)
	if base == "" {
		return TranscriptLine{}, false
	}
	for _, l := range lines {
		if strings.Contains(l.Message, base) {
			return l, true
		}
	}
	return TranscriptLine{}, false
}

// filenameTimestamp recovers a best-effort timestamp from WhatsApp attachment
// names for members the transcript never mentions. The WA sequence counter is
// folded in as milliseconds for stable intra-day ordering.
func filenameTimestamp(name string) *time.Time {
	m := waNameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return nil
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	seq, _ := strconv.Atoi(m[4])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	ts := time.Date(year, time.Month(month), day, 0, 0, 0, seq*int(time.Millisecond), time.UTC)
	return &ts
}
