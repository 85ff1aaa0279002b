package mime

import (
	"bytes"
	"strings"
)

// Param is a single attribute=value parameter of a media type or a content
// disposition. Parameters keep the order they were parsed or added in.
type Param struct {
	Name  string
	Value string
}

// MediaType is a parsed content type value, e.g.
// application/vnd.api+json; charset=utf-8
type MediaType struct {
	// Primary is the type before the slash, lowercased
	Primary string
	// Sub is the subtype after the slash, lowercased, without any +suffix
	Sub string
	// Suffix is the structured syntax suffix, e.g. json in vnd.api+json
	Suffix string
	// Params holds the parameters in their original order
	Params []Param
}

// tspecial chars from RFC 2045, these never appear in a token
var isTokenSpecial = [128]bool{
	'(':  true,
	')':  true,
	'<':  true,
	'>':  true,
	'@':  true,
	',':  true,
	';':  true,
	':':  true,
	'\\': true,
	'"':  true,
	'/':  true,
	'[':  true,
	']':  true,
	'?':  true,
	'=':  true,
}

// typeParser walks a media type or content disposition string byte by byte.
// Tokens are captured in accept.
type typeParser struct {
	in     string
	pos    int
	accept bytes.Buffer
}

// ch returns the byte at the current position, 0 at the end of input
func (p *typeParser) ch() byte {
	if p.pos >= len(p.in) {
		return 0
	}
	return p.in[p.pos]
}

func (p *typeParser) next() {
	if p.pos < len(p.in) {
		p.pos++
	}
}

func (p *typeParser) eof() bool {
	return p.pos >= len(p.in)
}

func (p *typeParser) skipSpace() {
	for {
		switch p.ch() {
		case ' ', '\t', '\r', '\n':
			p.next()
		default:
			return
		}
	}
}

func (p *typeParser) errorf(reason string) *InvalidContentTypeError {
	return &InvalidContentTypeError{Input: p.in, Pos: p.pos, Reason: reason}
}

// token consumes a run of token chars, which may be empty.
// If lower is set, uppercase ASCII is folded to lowercase while scanning.
func (p *typeParser) token(lower bool) string {
	p.accept.Reset()
	for {
		c := p.ch()
		if c > 32 && c < 128 && !isTokenSpecial[c] {
			if lower && c >= 'A' && c <= 'Z' {
				c += 32
			}
			p.accept.WriteByte(c)
			p.next()
		} else {
			break
		}
	}
	return p.accept.String()
}

// quotedString consumes a "..." value with backslash escapes. The parser
// must be positioned on the opening quote.
func (p *typeParser) quotedString() (string, error) {
	p.accept.Reset()
	p.next()
	for !p.eof() {
		c := p.ch()
		if c == '\\' {
			p.next()
			if p.eof() {
				break
			}
			p.accept.WriteByte(p.ch())
			p.next()
			continue
		}
		if c == '"' {
			p.next()
			return p.accept.String(), nil
		}
		p.accept.WriteByte(c)
		p.next()
	}
	return "", p.errorf("unterminated quoted string")
}

// quotedStringLenient is quotedString for the permissive disposition
// grammar: a missing closing quote yields what was read so far.
func (p *typeParser) quotedStringLenient() string {
	s, err := p.quotedString()
	if err != nil {
		return p.accept.String()
	}
	return s
}

// ParseMediaType parses a content type value of the form
// type "/" subtype ["+" suffix] *(";" attribute "=" value).
// Type, subtype and attribute names are folded to lowercase, parameter
// values keep their case and order. Empty parameters (";;" or a trailing
// ";") are tolerated; anything else that strays from the grammar returns
// an *InvalidContentTypeError.
func ParseMediaType(input string) (*MediaType, error) {
	p := &typeParser{in: input}
	p.skipSpace()
	primary := p.token(true)
	if primary == "" {
		return nil, p.errorf("expecting a type")
	}
	if p.ch() != '/' {
		return nil, p.errorf("expecting a / after the type")
	}
	p.next()
	sub := p.token(true)
	if sub == "" {
		return nil, p.errorf("expecting a subtype")
	}
	mt := &MediaType{Primary: primary, Sub: sub}
	// a + inside the subtype separates the structured syntax suffix
	if i := strings.LastIndexByte(sub, '+'); i >= 0 {
		if i == 0 {
			return nil, p.errorf("expecting a subtype")
		}
		mt.Sub, mt.Suffix = sub[:i], sub[i+1:]
	}
	for {
		p.skipSpace()
		if p.eof() {
			return mt, nil
		}
		if p.ch() != ';' {
			return nil, p.errorf("expecting a ; before a parameter")
		}
		p.next()
		p.skipSpace()
		if p.eof() {
			return mt, nil
		}
		if p.ch() == ';' {
			continue
		}
		attr := p.token(true)
		if attr == "" {
			return nil, p.errorf("expecting an attribute")
		}
		if p.ch() != '=' {
			return nil, p.errorf("expecting an = after the attribute")
		}
		p.next()
		var value string
		if p.ch() == '"' {
			v, err := p.quotedString()
			if err != nil {
				return nil, err
			}
			value = v
		} else {
			value = p.token(false)
		}
		mt.Params = append(mt.Params, Param{Name: attr, Value: value})
	}
}

// BaseType returns type/subtype with no suffix and no parameters.
func (m *MediaType) BaseType() string {
	return m.Primary + "/" + m.Sub
}

// Param returns the value of the named parameter, matching the name
// case-insensitively.
func (m *MediaType) Param(name string) (string, bool) {
	for i := range m.Params {
		if strings.EqualFold(m.Params[i].Name, name) {
			return m.Params[i].Value, true
		}
	}
	return "", false
}

// Charset returns the charset parameter, or "" when there is none.
func (m *MediaType) Charset() string {
	v, _ := m.Param("charset")
	return v
}

// Boundary returns the boundary parameter, or "" when there is none.
func (m *MediaType) Boundary() string {
	v, _ := m.Param("boundary")
	return v
}

// setParam replaces the named parameter or appends it when absent.
func (m *MediaType) setParam(name, value string) {
	for i := range m.Params {
		if strings.EqualFold(m.Params[i].Name, name) {
			m.Params[i].Value = value
			return
		}
	}
	m.Params = append(m.Params, Param{Name: name, Value: value})
}

// String serializes the media type back to wire form. Parameter values that
// are not plain tokens come out quoted, so parse(String()) preserves the
// base type and the parameter set.
func (m *MediaType) String() string {
	var sb strings.Builder
	sb.WriteString(m.Primary)
	sb.WriteByte('/')
	sb.WriteString(m.Sub)
	if m.Suffix != "" {
		sb.WriteByte('+')
		sb.WriteString(m.Suffix)
	}
	for i := range m.Params {
		sb.WriteString("; ")
		sb.WriteString(m.Params[i].Name)
		sb.WriteByte('=')
		sb.WriteString(quoteValue(m.Params[i].Value))
	}
	return sb.String()
}

// isToken reports whether s consists only of token chars.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 32 || c >= 128 || isTokenSpecial[c] {
			return false
		}
	}
	return true
}

// quoteValue returns v as-is when it is a plain token, otherwise as a
// quoted-string with " and \ escaped.
func quoteValue(v string) string {
	if isToken(v) {
		return v
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(v[i])
	}
	sb.WriteByte('"')
	return sb.String()
}
