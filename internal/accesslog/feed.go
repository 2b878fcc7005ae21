package accesslog

import (
	"bufio"
	stderr "errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

var gzipMagic = []byte{0x1f, 0x8b}

// FileFeed streams access events from one log file, plain or gzip-compressed.
type FileFeed struct {
	path     string
	file     *os.File
	gz       *gzip.Reader
	reader   *bufio.Reader
	statuses StatusSet
	line     int
	done     bool
}

// OpenFile opens path as an event feed. Compression is detected from the
// file's magic bytes. A missing file returns FEED_UNAVAILABLE.
func OpenFile(path string, statuses []int) (*FileFeed, error) {
	file, err := os.Open(path) // #nosec G304 -- operator-configured log path
	if err != nil {
		code := errors.ErrCodeFeedRead
		if os.IsNotExist(err) {
			code = errors.ErrCodeFeedUnavailable
		}
		return nil, errors.Wrap(err, code, fmt.Sprintf("cannot open access log %s", path)).
			WithComponent("accesslog")
	}

	feed := &FileFeed{
		path:     path,
		file:     file,
		statuses: NewStatusSet(statuses),
	}

	buffered := bufio.NewReaderSize(file, 256*1024)
	magic, _ := buffered.Peek(len(gzipMagic))
	if len(magic) == len(gzipMagic) && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrap(err, errors.ErrCodeFeedRead, fmt.Sprintf("invalid gzip stream in %s", path)).
				WithComponent("accesslog")
		}
		feed.gz = gz
		feed.reader = bufio.NewReaderSize(gz, 256*1024)
	} else {
		feed.reader = buffered
	}
	return feed, nil
}

// Next returns the next view event, skipping lines that are not views.
func (f *FileFeed) Next() (types.AccessEvent, error) {
	for !f.done {
		raw, err := f.reader.ReadString('\n')
		if err != nil {
			if !stderr.Is(err, io.EOF) {
				f.done = true
				return types.AccessEvent{}, errors.Wrap(err, errors.ErrCodeFeedRead,
					fmt.Sprintf("read %s at line %d", f.path, f.line+1)).WithComponent("accesslog")
			}
			f.done = true
			if raw == "" {
				break
			}
		}
		f.line++

		event, ok, parseErr := ParseLine(raw, f.statuses)
		if parseErr != nil {
			var cacheErr *errors.CacheError
			if stderr.As(parseErr, &cacheErr) {
				cacheErr.WithContext("file", f.path).WithDetail("line_number", f.line)
			}
			return types.AccessEvent{}, parseErr
		}
		if ok {
			return event, nil
		}
	}
	return types.AccessEvent{}, io.EOF
}

// Close releases the underlying file.
func (f *FileFeed) Close() error {
	if f.gz != nil {
		_ = f.gz.Close()
	}
	return f.file.Close()
}

// MultiFeed chains several log files in order, opening each on demand.
// Files that cannot be opened are logged and skipped.
type MultiFeed struct {
	paths    []string
	statuses []int
	current  *FileFeed
	logger   *logrus.Entry
	opened   int
	missing  int
}

// Open returns a feed over paths. It never fails: a missing log simply
// contributes no events.
func Open(paths []string, statuses []int, logger logrus.FieldLogger) *MultiFeed {
	return &MultiFeed{
		paths:    append([]string(nil), paths...),
		statuses: statuses,
		logger:   utils.WithComponent(logger, "accesslog"),
	}
}

// Next returns the next event across all files.
func (m *MultiFeed) Next() (types.AccessEvent, error) {
	for {
		if m.current == nil {
			if len(m.paths) == 0 {
				return types.AccessEvent{}, io.EOF
			}
			path := m.paths[0]
			m.paths = m.paths[1:]
			feed, err := OpenFile(path, m.statuses)
			if err != nil {
				m.missing++
				m.logger.WithError(err).WithField("file", path).Warn("Access log unavailable; continuing without it")
				continue
			}
			m.opened++
			m.logger.WithField("file", path).Debug("Reading access log")
			m.current = feed
		}

		event, err := m.current.Next()
		if stderr.Is(err, io.EOF) {
			_ = m.current.Close()
			m.current = nil
			continue
		}
		if err != nil && !errors.HasCode(err, errors.ErrCodeMalformedEvent) {
			m.logger.WithError(err).Warn("Access log ended early")
			_ = m.current.Close()
			m.current = nil
			continue
		}
		return event, err
	}
}

// Opened returns how many files were opened so far, and how many were skipped.
func (m *MultiFeed) Opened() (opened, missing int) {
	return m.opened, m.missing
}

// Close releases the file currently being read.
func (m *MultiFeed) Close() error {
	if m.current != nil {
		err := m.current.Close()
		m.current = nil
		return err
	}
	return nil
}
