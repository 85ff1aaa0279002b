package mime

import (
	"testing"
)

func FuzzParseMediaType(f *testing.F) {
	f.Add("text/plain")
	f.Add("text/plain; charset=utf-8")
	f.Add(`multipart/mixed; boundary="a b c"`)
	f.Add("application/vnd.api+json; q=0.5;; x=")
	f.Add("text/html extra")
	f.Add(`image/svg+xml; note="esc \" aped"`)
	f.Fuzz(func(t *testing.T, input string) {
		mt, err := ParseMediaType(input)
		if err != nil {
			return
		}
		if mt.Primary == "" || mt.Sub == "" {
			t.Errorf("parsed %q with an empty type or subtype: %#v", input, mt)
		}
		out := mt.String()
		mt2, err := ParseMediaType(out)
		if err != nil {
			t.Errorf("serialized form %q of %q failed to reparse: %v", out, input, err)
			return
		}
		if mt2.BaseType() != mt.BaseType() {
			t.Errorf("base type changed through round trip: %q -> %q", mt.BaseType(), mt2.BaseType())
		}
		if len(mt2.Params) != len(mt.Params) {
			t.Errorf("param count changed through round trip: %v -> %v", mt.Params, mt2.Params)
			return
		}
		for i := range mt.Params {
			if mt2.Params[i] != mt.Params[i] {
				t.Errorf("param %d changed through round trip: %v -> %v", i, mt.Params[i], mt2.Params[i])
			}
		}
	})
}

func FuzzParseContentDisposition(f *testing.F) {
	f.Add(`form-data; name="file"; filename="a.txt"`)
	f.Add("attachment")
	f.Add(`inline; filename="broken`)
	f.Add("; ; =; garbage @@@")
	f.Fuzz(func(t *testing.T, input string) {
		// must never fail, whatever arrives
		if d := ParseContentDisposition(input); d == nil {
			t.Error("nil disposition for:", input)
		}
	})
}

func FuzzSplitMultipart(f *testing.F) {
	f.Add([]byte("--B\r\nContent-Type: text/plain\r\n\r\nhello\r\n--B--\r\n"), "B")
	f.Add([]byte("--B\r\n--B--"), "B")
	f.Add([]byte("preamble\r\n--x\r\n\r\na\r\n--x\r\n\r\nb\r\n--x--\r\nepilogue"), "x")
	f.Fuzz(func(t *testing.T, body []byte, boundary string) {
		// must never panic, errors are fine
		parts, err := SplitMultipart(body, boundary)
		if err != nil {
			return
		}
		for _, p := range parts {
			if p == nil {
				t.Error("nil part in split result")
			}
		}
	})
}
