package digest

import (
	"strings"
	"testing"
)

func TestFileKnownVectors(t *testing.T) {
	cases := []struct {
		typ  Type
		want string
	}{
		{MD5, "d41d8cd98f00b204e9800998ecf8427e"},
		{SHA256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{CRC32, "00000000"},
	}
	for _, c := range cases {
		got, err := File(c.typ, strings.NewReader(""))
		if err != nil {
			t.Fatalf("File(%s, \"\"): %v", c.typ, err)
		}
		if got != c.want {
			t.Errorf("File(%s, \"\") = %s, want %s", c.typ, got, c.want)
		}
	}
}

func TestEqualCaseInsensitive(t *testing.T) {
	if !Equal("ABCDEF", "abcdef") {
		t.Error("Equal should ignore case")
	}
	if !Equal(" abcdef \n", "abcdef") {
		t.Error("Equal should ignore surrounding whitespace")
	}
	if Equal("abcdef", "abcdee") {
		t.Error("Equal should not match differing digests")
	}
}

func TestParseType(t *testing.T) {
	for _, name := range []string{"md5", "MD5", "crc32", "sha256", "SHA-256"} {
		if _, err := ParseType(name); err != nil {
			t.Errorf("ParseType(%q): %v", name, err)
		}
	}
	if _, err := ParseType("rot13"); err == nil {
		t.Error("ParseType(\"rot13\") should fail")
	}
}

func TestNewUnsupportedType(t *testing.T) {
	if _, err := New(Type(99)); err == nil {
		t.Error("New with unsupported type should error")
	}
}
