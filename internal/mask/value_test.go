package mask

import (
	"testing"
)

// TestParseEncode tests document round-tripping through the Value tree
func TestParseEncode(t *testing.T) {
	t.Run("RoundTripsCompactDocuments", func(t *testing.T) {
		inputs := []string{
			`{"a":1,"b":"two","c":true,"d":null}`,
			`[1,"x",false,null,{"k":[]},{}]`,
			`{"outer":{"inner":{"deep":[1,2,3]}}}`,
			`"just a string"`,
			`42`,
			`true`,
			`null`,
		}
		for _, in := range inputs {
			v, err := Parse(in)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", in, err)
			}
			out, err := v.Encode()
			if err != nil {
				t.Fatalf("Encode of %q failed: %v", in, err)
			}
			if out != in {
				t.Errorf("round trip of %q = %q", in, out)
			}
		}
	})

	t.Run("PreservesKeyOrder", func(t *testing.T) {
		v, err := Parse(`{"zebra":1,"apple":2,"mango":3}`)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if len(v.Members) != 3 {
			t.Fatalf("Members count = %d, want 3", len(v.Members))
		}
		keys := []string{v.Members[0].Key, v.Members[1].Key, v.Members[2].Key}
		want := []string{"zebra", "apple", "mango"}
		for i := range want {
			if keys[i] != want[i] {
				t.Errorf("key order = %v, want %v", keys, want)
				break
			}
		}
	})

	t.Run("PreservesDuplicateKeys", func(t *testing.T) {
		in := `{"a":1,"a":2}`
		v, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		out, _ := v.Encode()
		if out != in {
			t.Errorf("round trip = %q, want %q", out, in)
		}
	})

	t.Run("PreservesNumberDigits", func(t *testing.T) {
		// json.Number keeps the exact source text
		inputs := []string{`1.500`, `1e10`, `-0.0`, `123456789012345678901234567890`}
		for _, in := range inputs {
			v, err := Parse(in)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", in, err)
			}
			out, _ := v.Encode()
			if out != in {
				t.Errorf("number %q round-tripped to %q", in, out)
			}
		}
	})

	t.Run("EscapesStrings", func(t *testing.T) {
		in := `{"msg":"line1\nline2 \"quoted\""}`
		v, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		out, _ := v.Encode()
		if out != in {
			t.Errorf("round trip = %q, want %q", out, in)
		}
	})

	t.Run("NormalizesWhitespace", func(t *testing.T) {
		v, err := Parse(`{ "a" : 1 , "b" : [ 1 , 2 ] }`)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		out, _ := v.Encode()
		want := `{"a":1,"b":[1,2]}`
		if out != want {
			t.Errorf("Encode = %q, want %q", out, want)
		}
	})
}

// TestParseErrors tests rejection of malformed documents
func TestParseErrors(t *testing.T) {
	inputs := []string{
		``,
		`{`,
		`{"a":}`,
		`{"a":1`,
		`[1,2`,
		`{"a":1}extra`,
		`{"a":1} {"b":2}`,
		`not json`,
		`{'a':1}`,
	}
	for _, in := range inputs {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}
