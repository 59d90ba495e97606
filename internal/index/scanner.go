package index

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// objectScanner pulls one top-level JSON object at a time out of a flat
// array streamed over a reader, without buffering the whole listing. It
// tracks brace depth and string/escape state over fixed-size chunks, so an
// object split across reads (or containing braces and escaped quotes inside
// strings) still comes out whole.
type objectScanner struct {
	r   io.Reader
	buf []byte
	n   int
	pos int

	obj      strings.Builder
	depth    int
	inString bool
	escaped  bool
}

func newObjectScanner(r io.Reader) *objectScanner {
	return &objectScanner{r: r, buf: make([]byte, 64*1024)}
}

// Next returns the raw text of the next object, or io.EOF when the array is
// exhausted.
func (s *objectScanner) Next() (string, error) {
	for {
		if s.pos >= s.n {
			n, err := s.r.Read(s.buf)
			if n == 0 {
				if err == nil {
					continue
				}
				if err == io.EOF && s.depth > 0 {
					return "", fmt.Errorf("listing truncated mid-object")
				}
				return "", err
			}
			s.n, s.pos = n, 0
		}

		for s.pos < s.n {
			c := s.buf[s.pos]
			s.pos++

			if s.depth == 0 {
				// Between objects: skip array punctuation and whitespace.
				if c == '{' {
					s.depth = 1
					s.obj.Reset()
					s.obj.WriteByte(c)
				}
				continue
			}

			s.obj.WriteByte(c)

			if s.inString {
				switch {
				case s.escaped:
					s.escaped = false
				case c == '\\':
					s.escaped = true
				case c == '"':
					s.inString = false
				}
				continue
			}

			switch c {
			case '"':
				s.inString = true
			case '{':
				s.depth++
			case '}':
				s.depth--
				if s.depth == 0 {
					return s.obj.String(), nil
				}
			}
		}
	}
}

// The listing objects carry many fields; only five matter to the index, so
// they are pulled out by direct key search instead of full JSON decoding.

type listedEntry struct {
	Path    string
	Name    string
	Size    int64
	ModTime string
	IsDir   bool
}

func parseListedEntry(obj string) (listedEntry, bool) {
	e := listedEntry{
		Path:    extractString(obj, "Path"),
		Name:    extractString(obj, "Name"),
		Size:    extractInt(obj, "Size"),
		ModTime: extractString(obj, "ModTime"),
		IsDir:   extractBool(obj, "IsDir"),
	}
	// Timestamps arrive with sub-second precision and zone suffixes; the
	// index keeps the sortable "YYYY-MM-DDTHH:MM:SS" prefix.
	if len(e.ModTime) > 19 {
		e.ModTime = e.ModTime[:19]
	}
	if e.Path == "" {
		return e, false
	}
	if e.Name == "" {
		if i := strings.LastIndex(e.Path, "/"); i >= 0 {
			e.Name = e.Path[i+1:]
		} else {
			e.Name = e.Path
		}
	}
	return e, true
}

func extractString(obj, key string) string {
	start := keyValueStart(obj, key)
	if start < 0 || start >= len(obj) || obj[start] != '"' {
		return ""
	}
	var b strings.Builder
	for i := start + 1; i < len(obj); i++ {
		c := obj[i]
		if c == '\\' && i+1 < len(obj) {
			i++
			switch obj[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '"', '/':
				b.WriteByte(obj[i])
			default:
				b.WriteByte('\\')
				b.WriteByte(obj[i])
			}
			continue
		}
		if c == '"' {
			return b.String()
		}
		b.WriteByte(c)
	}
	return ""
}

func extractInt(obj, key string) int64 {
	start := keyValueStart(obj, key)
	if start < 0 {
		return 0
	}
	end := start
	for end < len(obj) && (obj[end] == '-' || (obj[end] >= '0' && obj[end] <= '9')) {
		end++
	}
	n, err := strconv.ParseInt(obj[start:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func extractBool(obj, key string) bool {
	start := keyValueStart(obj, key)
	return start >= 0 && strings.HasPrefix(obj[start:], "true")
}

// keyValueStart finds `"key":` and returns the index of the first byte of
// its value, skipping whitespace, or -1.
func keyValueStart(obj, key string) int {
	needle := `"` + key + `"`
	from := 0
	for {
		i := strings.Index(obj[from:], needle)
		if i < 0 {
			return -1
		}
		j := from + i + len(needle)
		for j < len(obj) && (obj[j] == ' ' || obj[j] == '\t' || obj[j] == '\n' || obj[j] == '\r') {
			j++
		}
		if j < len(obj) && obj[j] == ':' {
			j++
			for j < len(obj) && (obj[j] == ' ' || obj[j] == '\t' || obj[j] == '\n' || obj[j] == '\r') {
				j++
			}
			return j
		}
		from += i + len(needle)
	}
}
