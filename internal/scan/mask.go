package scan

import "bytes"

// maskLiterals returns a copy of src with the bodies of comments, string
// literals, template text and regular expression literals replaced by
// spaces. Quote characters and newlines are kept, so offsets and line
// numbers in the copy match src and a specifier can be read back from src.
func maskLiterals(src []byte) []byte {
	m := &masker{src: src, out: bytes.Clone(src)}
	m.run()
	return m.out
}

type masker struct {
	src, out []byte

	// subst holds the brace depth at which each open ${...} substitution
	// returns to template text.
	subst []int
	depth int

	// prev is the last significant code byte and word the identifier
	// ending at it, if any. Together they decide whether a slash starts a
	// regular expression or divides.
	prev byte
	word []byte
}

var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "case": true, "do": true, "else": true,
	"in": true, "of": true, "void": true, "delete": true, "throw": true,
	"new": true, "instanceof": true, "yield": true, "await": true,
}

func (m *masker) run() {
	src := m.src
	i := 0
	if bytes.HasPrefix(src, []byte("#!")) {
		i = lineEnd(src, 0)
		m.blank(0, i)
	}
	for i < len(src) {
		c := src[i]
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			end := lineEnd(src, i)
			m.blank(i, end)
			i = end
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := len(src)
			if j := bytes.Index(src[i+2:], []byte("*/")); j >= 0 {
				end = i + 2 + j + 2
			}
			m.blank(i, end)
			i = end
		case c == '"' || c == '\'':
			i = m.quoted(i, c)
		case c == '`':
			i = m.template(i + 1)
		case c == '/' && m.regexAllowed():
			i = m.regex(i)
		case c == '{':
			m.depth++
			m.prev, m.word = c, nil
			i++
		case c == '}':
			if n := len(m.subst); n > 0 && m.subst[n-1] == m.depth {
				m.subst = m.subst[:n-1]
				i = m.template(i + 1)
				continue
			}
			m.depth--
			m.prev, m.word = c, nil
			i++
		case isIdentByte(c):
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			m.prev, m.word = src[j-1], src[i:j]
			i = j
		default:
			if !isSpace(c) {
				m.prev, m.word = c, nil
			}
			i++
		}
	}
}

func (m *masker) blank(from, to int) {
	to = min(to, len(m.out))
	for i := from; i < to; i++ {
		if m.out[i] != '\n' {
			m.out[i] = ' '
		}
	}
}

// quoted masks a single- or double-quoted string starting at start and
// returns the offset after it.
func (m *masker) quoted(start int, q byte) int {
	src := m.src
	m.prev, m.word = q, nil
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case q:
			m.blank(start+1, i)
			return i + 1
		case '\n':
			m.blank(start+1, i)
			return i
		}
	}
	m.blank(start+1, len(src))
	return len(src)
}

// template masks template text from start up to the closing backtick or
// the next ${, and returns the offset after it.
func (m *masker) template(start int) int {
	src := m.src
	for i := start; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '`':
			m.blank(start, i)
			m.prev, m.word = '`', nil
			return i + 1
		case '$':
			if i+1 < len(src) && src[i+1] == '{' {
				m.blank(start, i)
				m.subst = append(m.subst, m.depth)
				m.prev, m.word = '{', nil
				return i + 2
			}
		}
	}
	m.blank(start, len(src))
	return len(src)
}

// regex masks a regular expression literal starting at start. A slash
// with no closing slash on the same line is treated as division.
func (m *masker) regex(start int) int {
	src := m.src
	inClass := false
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if inClass {
				continue
			}
			m.blank(start+1, i)
			m.prev, m.word = ')', nil
			return i + 1
		case '\n':
			m.prev, m.word = '/', nil
			return start + 1
		}
	}
	m.prev, m.word = '/', nil
	return start + 1
}

func (m *masker) regexAllowed() bool {
	switch {
	case m.prev == 0:
		return true
	case m.word != nil:
		return regexKeywords[string(m.word)]
	}
	switch m.prev {
	case ')', ']', '"', '\'', '`':
		return false
	}
	return true
}

func lineEnd(src []byte, from int) int {
	if j := bytes.IndexByte(src[from:], '\n'); j >= 0 {
		return from + j
	}
	return len(src)
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
