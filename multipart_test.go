package mime

import (
	"bytes"
	"strings"
	"testing"
)

func TestSplitSinglePart(t *testing.T) {
	raw := "--B\r\nContent-Type: text/plain\r\n\r\nhello\r\n--B--\r\n"
	parts, err := SplitMultipart([]byte(raw), "B")
	if err != nil {
		t.Error(err)
	}
	if len(parts) != 1 {
		t.Fatal("expecting 1 part, got:", len(parts))
	}
	if v, _ := parts[0].GetHeader("content-type"); v != "text/plain" {
		t.Error("expecting text/plain, got:", v)
	}
	b, err := parts[0].Bytes()
	if err != nil {
		t.Error(err)
	}
	if string(b) != "hello" {
		t.Error("expecting hello, got:", string(b))
	}
}

func TestSplitMissingOpening(t *testing.T) {
	_, err := SplitMultipart([]byte("no delimiters in here\r\n"), "B")
	if err == nil {
		t.Error("expecting a failure")
	}
	if _, ok := err.(*ParserError); !ok {
		t.Error("expecting *ParserError, got:", err)
	}
}

func TestSplitMissingTerminal(t *testing.T) {
	raw := "--B\r\n\r\ntruncated body"
	if _, err := SplitMultipart([]byte(raw), "B"); err == nil {
		t.Error("expecting a failure on a missing terminal boundary")
	}
}

func TestSplitTerminalBeforeOpening(t *testing.T) {
	if _, err := SplitMultipart([]byte("--B--\r\n"), "B"); err == nil {
		t.Error("expecting a failure, the opening delimiter never appeared")
	}
}

func TestSplitEmptyPart(t *testing.T) {
	parts, err := SplitMultipart([]byte("--B\r\n--B--"), "B")
	if err != nil {
		t.Error(err)
	}
	if len(parts) != 1 {
		t.Fatal("expecting 1 part, got:", len(parts))
	}
	if b, _ := parts[0].Bytes(); len(b) != 0 {
		t.Error("expecting an empty body, got:", string(b))
	}
	if parts[0].Header().Len() != 0 {
		t.Error("expecting no headers, got:", parts[0].HeaderNames())
	}
}

func TestSplitPreambleEpilogue(t *testing.T) {
	raw := "this is a preamble\r\nstill preamble\r\n" +
		"--B\r\n\r\npayload\r\n--B--\r\n" +
		"epilogue to be ignored\r\n"
	parts, err := SplitMultipart([]byte(raw), "B")
	if err != nil {
		t.Error(err)
	}
	if len(parts) != 1 {
		t.Fatal("expecting 1 part, got:", len(parts))
	}
	if b, _ := parts[0].Bytes(); string(b) != "payload" {
		t.Error("expecting payload, got:", string(b))
	}
}

func TestSplitTransportPadding(t *testing.T) {
	raw := "--B \t\r\n\r\nhi\r\n--B-- \r\n"
	parts, err := SplitMultipart([]byte(raw), "B")
	if err != nil {
		t.Error(err)
	}
	if len(parts) != 1 {
		t.Fatal("expecting 1 part, got:", len(parts))
	}
}

func TestSplitLongestMatchWins(t *testing.T) {
	// the terminal form is a delimiter plus --, it must not be read as a
	// plain delimiter followed by a -- body
	raw := "--B\r\n\r\nfirst\r\n--B\r\n\r\nsecond\r\n--B--"
	parts, err := SplitMultipart([]byte(raw), "B")
	if err != nil {
		t.Error(err)
	}
	if len(parts) != 2 {
		t.Error("expecting 2 parts, got:", len(parts))
	}
}

func TestSplitNested(t *testing.T) {
	raw := "--out\r\n" +
		"Content-Type: multipart/mixed; boundary=in\r\n" +
		"\r\n" +
		"--in\r\n\r\nfirst\r\n--in\r\n\r\nsecond\r\n--in--\r\n" +
		"--out--\r\n"
	parts, err := SplitMultipart([]byte(raw), "out")
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 {
		t.Fatal("expecting 1 outer part, got:", len(parts))
	}
	inner, err := parts[0].Parts()
	if err != nil {
		t.Fatal(err)
	}
	if len(inner) != 2 {
		t.Fatal("expecting 2 inner parts, got:", len(inner))
	}
	if b, _ := inner[0].Bytes(); string(b) != "first" {
		t.Error("expecting first, got:", string(b))
	}
	if b, _ := inner[1].Bytes(); string(b) != "second" {
		t.Error("expecting second, got:", string(b))
	}
}

func TestSplitNestedSameBoundary(t *testing.T) {
	// a part claiming its parent's boundary cannot be split further, it is
	// kept as opaque bytes instead of failing the whole parse
	raw := "--B\r\n" +
		"Content-Type: multipart/mixed; boundary=B\r\n" +
		"\r\n" +
		"opaque\r\n" +
		"--B--\r\n"
	parts, err := SplitMultipart([]byte(raw), "B")
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 {
		t.Fatal("expecting 1 part, got:", len(parts))
	}
	if b, _ := parts[0].Bytes(); string(b) != "opaque" {
		t.Error("expecting opaque, got:", string(b))
	}
}

func TestSplitNoBoundary(t *testing.T) {
	if _, err := SplitMultipart([]byte("--\r\n"), ""); err == nil {
		t.Error("expecting a failure without a boundary")
	}
}

func TestWriteMultipartRoundTrip(t *testing.T) {
	p1 := NewEntity()
	if err := p1.SetText("hello"); err != nil {
		t.Error(err)
	}
	p1.SetHeader("X-A", "1")
	p2 := NewEntity()
	if err := p2.SetBytes([]byte("world\r\nbytes")); err != nil {
		t.Error(err)
	}
	p3 := NewEntity()
	if err := p3.SetStream(strings.NewReader("from a stream")); err != nil {
		t.Error(err)
	}

	var buf bytes.Buffer
	n, err := WriteMultipart(&buf, []*Entity{p1, p2, p3}, "testbound")
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Error("expecting byte count", buf.Len(), "got:", n)
	}

	parts, err := SplitMultipart(buf.Bytes(), "testbound")
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 3 {
		t.Fatal("expecting 3 parts, got:", len(parts))
	}
	if v, _ := parts[0].GetHeader("x-a"); v != "1" {
		t.Error("expecting the X-A header, got:", v)
	}
	if v, _ := parts[0].GetHeader("content-type"); v != "text/plain" {
		t.Error("expecting text/plain, got:", v)
	}
	if b, _ := parts[0].Bytes(); string(b) != "hello" {
		t.Error("expecting hello, got:", string(b))
	}
	if b, _ := parts[1].Bytes(); string(b) != "world\r\nbytes" {
		t.Error("body bytes changed, got:", string(b))
	}
	if b, _ := parts[2].Bytes(); string(b) != "from a stream" {
		t.Error("expecting from a stream, got:", string(b))
	}
}

func TestWriteMultipartNested(t *testing.T) {
	leaf := NewEntity()
	if err := leaf.SetText("deep"); err != nil {
		t.Error(err)
	}
	middle := NewEntity()
	if err := middle.SetParts([]*Entity{leaf}, "multipart/mixed; boundary=innerb"); err != nil {
		t.Error(err)
	}
	var buf bytes.Buffer
	if _, err := WriteMultipart(&buf, []*Entity{middle}, "outerb"); err != nil {
		t.Fatal(err)
	}
	parts, err := SplitMultipart(buf.Bytes(), "outerb")
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 {
		t.Fatal("expecting 1 part, got:", len(parts))
	}
	inner, err := parts[0].Parts()
	if err != nil {
		t.Fatal(err)
	}
	if len(inner) != 1 {
		t.Fatal("expecting 1 inner part, got:", len(inner))
	}
	if s, _ := inner[0].Text(); s != "deep" {
		t.Error("expecting deep, got:", s)
	}
}

func TestGenerateBoundary(t *testing.T) {
	a, b := GenerateBoundary(), GenerateBoundary()
	if a == b {
		t.Error("two boundaries should not collide")
	}
	if len(a) != 48 {
		t.Error("expecting 48 hex chars, got:", len(a))
	}
	if !isToken(a) {
		t.Error("boundary should be a plain token, got:", a)
	}
}

func TestBoundaryInParts(t *testing.T) {
	p := NewEntity()
	if err := p.SetText("contains --clash inside"); err != nil {
		t.Error(err)
	}
	if !boundaryInParts([]*Entity{p}, "clash") {
		t.Error("the collision should be detected")
	}
	if boundaryInParts([]*Entity{p}, "noclash") {
		t.Error("no collision expected")
	}
}
