package accesslog

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// StatusSet is the set of response codes that count as a view.
type StatusSet map[int]struct{}

// NewStatusSet builds a set; an empty list means {200}.
func NewStatusSet(statuses []int) StatusSet {
	if len(statuses) == 0 {
		statuses = []int{200}
	}
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// Has reports whether status is in the set.
func (s StatusSet) Has(status int) bool {
	_, ok := s[status]
	return ok
}

// ParseLine extracts an access event from one nginx combined-format line:
//
//	client - user [time] "GET /path?query HTTP/1.1" status bytes "referer" "agent"
//
// ok is false for well-formed lines that are not views (other methods,
// statuses outside the set, requests for "/"). A line that cannot be read
// returns a FEED_MALFORMED_EVENT error.
func ParseLine(line string, statuses StatusSet) (event types.AccessEvent, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return event, false, nil
	}

	fields := strings.Fields(line)
	client := fields[0]

	open := strings.IndexByte(line, '"')
	if open < 0 {
		return event, false, malformed("missing request line", line)
	}
	closeIdx := strings.IndexByte(line[open+1:], '"')
	if closeIdx < 0 {
		return event, false, malformed("unterminated request line", line)
	}
	request := line[open+1 : open+1+closeIdx]
	rest := strings.Fields(line[open+1+closeIdx+1:])
	if len(rest) == 0 {
		return event, false, malformed("missing status", line)
	}
	status, convErr := strconv.Atoi(rest[0])
	if convErr != nil {
		return event, false, malformed("non-numeric status", line)
	}
	if !statuses.Has(status) {
		return event, false, nil
	}

	parts := strings.Fields(request)
	if len(parts) < 2 {
		return event, false, malformed("short request line", line)
	}
	if parts[0] != "GET" {
		return event, false, nil
	}

	path, decodeErr := DecodeTarget(parts[1])
	if decodeErr != nil {
		return event, false, malformed("undecodable path: "+decodeErr.Error(), line)
	}
	if path == "" {
		return event, false, nil
	}

	return types.AccessEvent{Client: client, Path: path}, true, nil
}

// DecodeTarget turns a logged request target into a relative object path:
// nginx \xHH byte escapes and percent-encoding are decoded, the query string
// is dropped and the result is cleaned to the form inventory keys take
// (no leading, repeated or trailing slashes, no "." or ".." segments).
// A target that climbs above the root is an error.
func DecodeTarget(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", err
		}
		target = u.EscapedPath()
	}
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}

	target = DecodeHexEscapes(target)
	decoded, err := url.PathUnescape(target)
	if err != nil {
		return "", err
	}

	return utils.CleanObjectKey(decoded)
}

// DecodeHexEscapes replaces nginx-style \xHH sequences with the raw byte.
// Anything that is not a complete escape is copied through unchanged.
func DecodeHexEscapes(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			if hi, ok := unhex(s[i+2]); ok {
				if lo, ok := unhex(s[i+3]); ok {
					b.WriteByte(hi<<4 | lo)
					i += 3
					continue
				}
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func malformed(reason, line string) error {
	const maxLine = 200
	if len(line) > maxLine {
		line = line[:maxLine] + "..."
	}
	return errors.NewError(errors.ErrCodeMalformedEvent, reason).
		WithComponent("accesslog").
		WithDetail("line", line)
}
