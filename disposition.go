package mime

import (
	"strings"
)

// Common disposition types.
const (
	DispositionAttachment = "attachment"
	DispositionInline     = "inline"
	DispositionFormData   = "form-data"
)

// ContentDisposition is a parsed content disposition value. The name and
// filename parameters are promoted to fields; any other parameters stay in
// Params with the spelling they arrived with.
type ContentDisposition struct {
	// Disposition is the leading token, e.g. attachment, lowercased
	Disposition string
	// Name is the value of the name parameter, as used by form-data
	Name string
	// FileName is the value of the filename parameter
	FileName string
	// Params holds the remaining parameters in their original order
	Params []Param
}

// ParseContentDisposition parses a content disposition value. Unlike the
// content type grammar this parser never fails: legacy producers emit all
// kinds of damaged disposition lines, so anything unparseable is dropped
// and whatever was read up to that point is kept. An empty input yields a
// ContentDisposition with empty fields.
func ParseContentDisposition(input string) *ContentDisposition {
	d := &ContentDisposition{}
	p := &typeParser{in: input}
	p.skipSpace()
	d.Disposition = p.token(true)
	for {
		p.skipSpace()
		if p.ch() != ';' {
			// eof, or garbage we cannot resync from
			return d
		}
		p.next()
		p.skipSpace()
		if p.eof() {
			return d
		}
		if p.ch() == ';' {
			continue
		}
		name := p.token(false)
		if name == "" {
			return d
		}
		if p.ch() != '=' {
			// valueless parameter, tolerated
			d.addParam(name, "")
			continue
		}
		p.next()
		var value string
		if p.ch() == '"' {
			value = p.quotedStringLenient()
		} else {
			value = p.token(false)
		}
		d.addParam(name, value)
	}
}

func (d *ContentDisposition) addParam(name, value string) {
	switch strings.ToLower(name) {
	case "name":
		d.Name = value
	case "filename":
		d.FileName = value
	default:
		d.Params = append(d.Params, Param{Name: name, Value: value})
	}
}

// Param returns the value of a non-promoted parameter, matching the name
// case-insensitively.
func (d *ContentDisposition) Param(name string) (string, bool) {
	for i := range d.Params {
		if strings.EqualFold(d.Params[i].Name, name) {
			return d.Params[i].Value, true
		}
	}
	return "", false
}

// String serializes the disposition back to wire form. The name and
// filename values are always quoted, matching what form-data consumers
// expect.
func (d *ContentDisposition) String() string {
	var sb strings.Builder
	sb.WriteString(d.Disposition)
	if d.Name != "" {
		sb.WriteString("; name=")
		sb.WriteString(quoteAlways(d.Name))
	}
	if d.FileName != "" {
		sb.WriteString("; filename=")
		sb.WriteString(quoteAlways(d.FileName))
	}
	for i := range d.Params {
		sb.WriteString("; ")
		sb.WriteString(d.Params[i].Name)
		sb.WriteByte('=')
		sb.WriteString(quoteValue(d.Params[i].Value))
	}
	return sb.String()
}

func quoteAlways(v string) string {
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
