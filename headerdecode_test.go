package mime

import (
	"strings"
	"testing"
)

func TestHeaderDecode(t *testing.T) {
	str := HeaderDecode("=?ISO-8859-1?Q?Andr=E9?= Pirard <PIRARD@vm1.ulg.ac.be>")
	if strings.Index(str, "André Pirard") != 0 {
		t.Error("expecting André Pirard, got:", str)
	}
	str = HeaderDecode("=?ISO-8859-1?Q?Andr=E9?=\tPirard <PIRARD@vm1.ulg.ac.be>")
	if strings.Index(str, "André\tPirard") != 0 {
		t.Error("expecting André\tPirard, got:", str)
	}
}

func TestHeaderDecodeEnding(t *testing.T) {
	str := HeaderDecode("What about this one? =?ISO-8859-1?Q?Andr=E9?=")
	if str != "What about this one? André" {
		t.Error("expecting: What about this one? André, but got:", str)
	}
	str = HeaderDecode("=?ISO-8859-1?Q?Andr=E9?= What about this one? =?ISO-8859-1?Q?Andr=E9?=")
	if str != "André What about this one? André" {
		t.Error("expecting: André What about this one? André, but got:", str)
	}
}

func TestHeaderDecodeBad(t *testing.T) {
	// base64 word carrying a quoted-printable payload fails and stays as is
	in := "=?ISO-8859-1?B?Andr=E9?=\tPirard <PIRARD@vm1.ulg.ac.be>"
	if str := HeaderDecode(in); str != in {
		t.Error("expecting the input unchanged, got:", str)
	}
	in = "=?garbage"
	if str := HeaderDecode(in); str != in {
		t.Error("expecting the input unchanged, got:", str)
	}
}

func TestHeaderDecodeNoSpace(t *testing.T) {
	str := HeaderDecode("A =?ISO-8859-1?Q?Andr=E9?=WORLD IN YOUR POCKET")
	if str != "A AndréWORLD IN YOUR POCKET" {
		t.Error("expecting A AndréWORLD IN YOUR POCKET, got:", str)
	}
}

func TestHeaderDecodeMulti(t *testing.T) {
	str := HeaderDecode("=?utf-8?Q?one?= =?utf-8?Q?two?=")
	if str != "onetwo" {
		t.Error("expecting whitespace between words to be dropped, got:", str)
	}
	str = HeaderDecode("=?utf-8?Q?one?= \t =?utf-8?Q?two?= three")
	if str != "onetwo three" {
		t.Error("expecting onetwo three, got:", str)
	}
}

func TestHeaderDecodePlain(t *testing.T) {
	in := "Just a subject = nothing encoded?"
	if str := HeaderDecode(in); str != in {
		t.Error("expecting the input unchanged, got:", str)
	}
}

func TestHeaderDecodeUnknownCharset(t *testing.T) {
	// no charset reader installed, the word has to stay encoded
	in := "=?x-nope?Q?abc?="
	if str := HeaderDecode(in); str != in {
		t.Error("expecting the input unchanged, got:", str)
	}
}
