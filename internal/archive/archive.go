package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/facturio/invoice-pipeline/constants"
)

// Fatal validation errors. Any of these aborts the whole job before a single
// extraction task is created.
var (
	ErrArchiveTooLarge  = errors.New("archive exceeds size limit")
	ErrArchiveCorrupt   = errors.New("archive is corrupt or unreadable")
	ErrUnsafeMemberPath = errors.New("archive member path escapes extraction root")
)

// Member is one extracted archive entry, fully held in memory.
type Member struct {
	Name      string
	Data      []byte
	MediaType string
}

// IgnoredFile records a member that was filtered out before extraction.
type IgnoredFile struct {
	Name   string `json:"filename"`
	Reason string `json:"reason"`
}

// Extractor validates an archive and yields its relevant members.
type Extractor struct {
	maxSize int64
	logger  *slog.Logger
}

func NewExtractor(maxSize int64, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{maxSize: maxSize, logger: logger}
}

// Extract opens the archive, enforces size and path-safety constraints, and
// returns the relevant members with their raw bytes and detected media type.
// The size limit is enforced both on declared sizes and while decompressing,
// so a decompression bomb cannot exhaust memory.
func (e *Extractor) Extract(content []byte) ([]Member, []IgnoredFile, error) {
	if int64(len(content)) > e.maxSize {
		return nil, nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrArchiveTooLarge, len(content), e.maxSize)
	}

	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}

	// Declared sizes first: reject bombs before touching any member.
	var declared uint64
	for _, f := range zr.File {
		declared += f.UncompressedSize64
	}
	if declared > uint64(e.maxSize) {
		return nil, nil, fmt.Errorf("%w: declared uncompressed size %d (limit %d)", ErrArchiveTooLarge, declared, e.maxSize)
	}

	var (
		members   []Member
		ignored   []IgnoredFile
		extracted int64
	)
	for _, f := range zr.File {
		name := f.Name
		if strings.HasSuffix(name, "/") || f.FileInfo().IsDir() {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnsafeMemberPath, name)
		}
		if reason, skip := e.irrelevant(name); skip {
			ignored = append(ignored, IgnoredFile{Name: name, Reason: reason})
			continue
		}

		data, err := e.readMember(f, e.maxSize-extracted)
		if err != nil {
			if errors.Is(err, ErrArchiveTooLarge) {
				return nil, nil, err
			}
			return nil, nil, fmt.Errorf("%w: member %q: %v", ErrArchiveCorrupt, name, err)
		}
		extracted += int64(len(data))

		mt := mimetype.Detect(data).String()
		members = append(members, Member{Name: name, Data: data, MediaType: mt})
		e.logger.Debug("archive member extracted",
			"filename", name, "size_bytes", len(data), "media_type", mt)
	}

	e.logger.Info("archive extraction completed",
		"total_extracted", len(members),
		"total_ignored", len(ignored),
		"bytes", extracted,
	)
	return members, ignored, nil
}

// readMember decompresses one entry, capped at the remaining byte allowance.
func (e *Extractor) readMember(f *zip.File, remaining int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			e.logger.Warn("archive member close error", "filename", f.Name, "error", cerr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(rc, remaining+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > remaining {
		return nil, fmt.Errorf("%w: decompressed payload exceeds limit", ErrArchiveTooLarge)
	}
	return data, nil
}

// irrelevant filters WhatsApp export noise: hidden files, stickers,
// thumbnails, audio notes, and extensions we never classify.
func (e *Extractor) irrelevant(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return "hidden file", true
	}
	if constants.IsIrrelevantName(base) {
		return "irrelevant file type or pattern", true
	}
	return "", false
}
