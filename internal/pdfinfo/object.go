package pdfinfo

import (
	"bytes"
	"errors"
	"strconv"
)

// kind identifies the type of a PDF object.
type kind uint8

const (
	kindNull kind = iota
	kindBool
	kindInt
	kindReal
	kindString
	kindName
	kindArray
	kindDict
	kindStream
	kindRef
)

// object is a parsed PDF value. Only the fields matching kind are set.
type object struct {
	kind  kind
	n     int64 // int and bool values
	f     float64
	str   string // string and name values
	array []*object
	dict  dict
	data  []byte // raw stream bytes
	ref   ref
}

var null = &object{kind: kindNull}

// ref is an indirect object reference "num gen R".
type ref struct {
	num int
	gen int
}

type dict map[string]*object

func (d dict) getInt(key string) (int64, bool) {
	o, ok := d[key]
	if !ok {
		return 0, false
	}
	switch o.kind {
	case kindInt:
		return o.n, true
	case kindReal:
		return int64(o.f), true
	}
	return 0, false
}

func (d dict) name(key string) string {
	if o, ok := d[key]; ok && o.kind == kindName {
		return o.str
	}
	return ""
}

func (o *object) number() (float64, bool) {
	switch o.kind {
	case kindInt:
		return float64(o.n), true
	case kindReal:
		return o.f, true
	}
	return 0, false
}

const maxDepth = 64

var errDepth = errors.New("pdfinfo: objects nested too deeply")

// scanner reads PDF objects from a byte slice.
type scanner struct {
	buf   []byte
	pos   int
	depth int
}

func isSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// skip moves past white space and comments.
func (s *scanner) skip() {
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		switch {
		case isSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.buf) && s.buf[s.pos] != '\n' && s.buf[s.pos] != '\r' {
				s.pos++
			}
		default:
			return
		}
	}
}

// keyword consumes kw if it is the next token.
func (s *scanner) keyword(kw string) bool {
	s.skip()
	end := s.pos + len(kw)
	if end > len(s.buf) || string(s.buf[s.pos:end]) != kw {
		return false
	}
	if end < len(s.buf) && !isSpace(s.buf[end]) && !isDelimiter(s.buf[end]) {
		return false
	}
	s.pos = end
	return true
}

// word returns the next regular token.
func (s *scanner) word() string {
	s.skip()
	start := s.pos
	for s.pos < len(s.buf) && !isSpace(s.buf[s.pos]) && !isDelimiter(s.buf[s.pos]) {
		s.pos++
	}
	return string(s.buf[start:s.pos])
}

// integer reads an unsigned integer token.
func (s *scanner) integer() (int, bool) {
	save := s.pos
	n, err := strconv.Atoi(s.word())
	if err != nil || n < 0 {
		s.pos = save
		return 0, false
	}
	return n, true
}

// header consumes "num gen obj" and returns num.
func (s *scanner) header() (int, bool) {
	num, ok := s.integer()
	if !ok {
		return 0, false
	}
	if _, ok := s.integer(); !ok {
		return 0, false
	}
	return num, s.keyword("obj")
}

// value parses the object at the current position.
func (s *scanner) value() (*object, error) {
	if s.depth >= maxDepth {
		return nil, errDepth
	}
	s.depth++
	defer func() { s.depth-- }()

	s.skip()
	if s.pos >= len(s.buf) {
		return null, nil
	}
	switch c := s.buf[s.pos]; {
	case c == '/':
		s.pos++
		return &object{kind: kindName, str: s.name()}, nil
	case c == '(':
		return &object{kind: kindString, str: s.literal()}, nil
	case c == '<' && s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '<':
		return s.dictOrStream()
	case c == '<':
		return &object{kind: kindString, str: s.hexString()}, nil
	case c == '[':
		s.pos++
		var arr []*object
		for {
			s.skip()
			if s.pos >= len(s.buf) {
				break
			}
			if s.buf[s.pos] == ']' {
				s.pos++
				break
			}
			v, err := s.value()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return &object{kind: kindArray, array: arr}, nil
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return s.numberOrRef(), nil
	}

	switch w := s.word(); w {
	case "true":
		return &object{kind: kindBool, n: 1}, nil
	case "false":
		return &object{kind: kindBool}, nil
	case "":
		// Stray delimiter such as ')' or '>'.
		s.pos++
	}
	return null, nil
}

func (s *scanner) name() string {
	start := s.pos
	for s.pos < len(s.buf) && !isSpace(s.buf[s.pos]) && !isDelimiter(s.buf[s.pos]) {
		s.pos++
	}
	raw := s.buf[start:s.pos]
	if bytes.IndexByte(raw, '#') < 0 {
		return string(raw)
	}
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '#' && i+2 < len(raw) {
			if v, err := strconv.ParseUint(string(raw[i+1:i+3]), 16, 8); err == nil {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, raw[i])
	}
	return string(out)
}

// literal reads a (string). Escapes are kept verbatim; only the extent of
// the string matters here.
func (s *scanner) literal() string {
	s.pos++
	start := s.pos
	depth := 1
	for s.pos < len(s.buf) {
		switch s.buf[s.pos] {
		case '\\':
			s.pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				str := string(s.buf[start:s.pos])
				s.pos++
				return str
			}
		}
		s.pos++
	}
	return string(s.buf[start:])
}

func (s *scanner) hexString() string {
	s.pos++
	end := bytes.IndexByte(s.buf[s.pos:], '>')
	if end < 0 {
		end = len(s.buf) - s.pos
	}
	str := string(s.buf[s.pos : s.pos+end])
	s.pos += end + 1
	return str
}

func (s *scanner) dictOrStream() (*object, error) {
	s.pos += 2
	d := make(dict)
	for {
		s.skip()
		if s.pos >= len(s.buf) {
			break
		}
		if s.buf[s.pos] == '>' {
			s.pos += 2
			break
		}
		if s.buf[s.pos] != '/' {
			s.pos++
			continue
		}
		s.pos++
		key := s.name()
		v, err := s.value()
		if err != nil {
			return nil, err
		}
		d[key] = v
	}

	save := s.pos
	if !s.keyword("stream") {
		s.pos = save
		return &object{kind: kindDict, dict: d}, nil
	}
	if s.pos < len(s.buf) && s.buf[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < len(s.buf) && s.buf[s.pos] == '\n' {
		s.pos++
	}
	start := s.pos
	end := -1
	if n, ok := d.getInt("Length"); ok && n >= 0 && start+int(n) <= len(s.buf) {
		end = start + int(n)
	}
	if end < 0 {
		// Indirect or wrong /Length: fall back to the endstream keyword.
		i := bytes.Index(s.buf[start:], []byte("endstream"))
		if i < 0 {
			i = len(s.buf) - start
		}
		end = start + i
	}
	s.pos = end
	s.keyword("endstream")
	return &object{kind: kindStream, dict: d, data: s.buf[start:end]}, nil
}

// numberOrRef parses a number, or an indirect reference when the number is
// followed by a generation and "R".
func (s *scanner) numberOrRef() *object {
	tok := s.word()
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return null
		}
		return &object{kind: kindReal, f: f}
	}

	save := s.pos
	if gen, ok := s.integer(); ok && s.keyword("R") {
		return &object{kind: kindRef, ref: ref{num: int(n), gen: gen}}
	}
	s.pos = save
	return &object{kind: kindInt, n: n}
}
