package mask

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

// TestStructuralMasking tests masking of well-formed JSON documents
func TestStructuralMasking(t *testing.T) {
	engine := New(WithLogger(zap.NewNop()))

	t.Run("MasksSensitiveKey", func(t *testing.T) {
		result := engine.Process(`{"Username":"john","Password":"secret123"}`)

		want := `{"Username":"john","Password":"***MASKED***"}`
		if result.Masked != want {
			t.Errorf("Masked = %s, want %s", result.Masked, want)
		}
		if result.Fallback {
			t.Error("Well-formed document took the fallback path")
		}
		if len(result.Findings) != 1 {
			t.Fatalf("Findings count = %d, want 1", len(result.Findings))
		}
		if result.Findings[0].Rule != "Password" || result.Findings[0].Hits != 1 {
			t.Errorf("Finding = %+v, want Password with 1 hit", result.Findings[0])
		}
	})

	t.Run("ErasesValueType", func(t *testing.T) {
		// Non-string sensitive values become the pattern string
		got := engine.Mask(`{"Token":12345,"Secret":true,"Key":null}`)
		want := `{"Token":"***MASKED***","Secret":"***MASKED***","Key":"***MASKED***"}`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})

	t.Run("MasksWholeObjectValue", func(t *testing.T) {
		got := engine.Mask(`{"Credential":{"user":"a","pass":"b"}}`)
		want := `{"Credential":"***MASKED***"}`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})

	t.Run("CaseInsensitiveKeys", func(t *testing.T) {
		result := engine.Process(`{"PASSWORD":"a","apikey":"b"}`)

		// Key spelling survives; the rule name is canonical
		want := `{"PASSWORD":"***MASKED***","apikey":"***MASKED***"}`
		if result.Masked != want {
			t.Errorf("Masked = %s, want %s", result.Masked, want)
		}
		if len(result.Findings) != 2 {
			t.Fatalf("Findings count = %d, want 2", len(result.Findings))
		}
		if result.Findings[0].Rule != "Password" || result.Findings[1].Rule != "ApiKey" {
			t.Errorf("Rules = %s, %s; want Password, ApiKey",
				result.Findings[0].Rule, result.Findings[1].Rule)
		}
	})

	t.Run("RecursesIntoNestedStructures", func(t *testing.T) {
		got := engine.Mask(`{"users":[{"name":"a","Password":"x"},{"name":"b","Password":"y"}]}`)
		want := `{"users":[{"name":"a","Password":"***MASKED***"},{"name":"b","Password":"***MASKED***"}]}`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})

	t.Run("PreservesKeyOrder", func(t *testing.T) {
		got := engine.Mask(`{"z":1,"Password":"x","a":2,"m":3}`)
		want := `{"z":1,"Password":"***MASKED***","a":2,"m":3}`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})

	t.Run("PreservesNumberText", func(t *testing.T) {
		// Digits round-trip exactly, including trailing zeros and exponents
		in := `{"pi":3.14000,"big":1e10,"neg":-0.5}`
		if got := engine.Mask(in); got != in {
			t.Errorf("Mask = %s, want unchanged %s", got, in)
		}
	})

	t.Run("NoSensitiveContentUnchanged", func(t *testing.T) {
		in := `{"name":"alice","age":30,"tags":["a","b"]}`
		result := engine.Process(in)
		if result.Masked != in {
			t.Errorf("Masked = %s, want unchanged %s", result.Masked, in)
		}
		if len(result.Findings) != 0 {
			t.Errorf("Findings count = %d, want 0", len(result.Findings))
		}
	})

	t.Run("EmptyInputUnchanged", func(t *testing.T) {
		result := engine.Process("")
		if result.Masked != "" {
			t.Errorf("Masked = %q, want empty", result.Masked)
		}
		if result.Fallback {
			t.Error("Empty input took the fallback path")
		}
	})
}

// TestEmbeddedSegmentMasking tests Name=value; scanning inside string values
func TestEmbeddedSegmentMasking(t *testing.T) {
	engine := New(WithLogger(zap.NewNop()))

	t.Run("MasksConnectionString", func(t *testing.T) {
		result := engine.Process(`{"Conn":"Server=db.local;Password=hunter2;Timeout=30;"}`)

		want := `{"Conn":"Server=db.local;Password=***MASKED***;Timeout=30;"}`
		if result.Masked != want {
			t.Errorf("Masked = %s, want %s", result.Masked, want)
		}
		if len(result.Findings) != 1 || result.Findings[0].Rule != "Password" {
			t.Errorf("Findings = %+v, want one Password finding", result.Findings)
		}
	})

	t.Run("MasksMultipleSegments", func(t *testing.T) {
		got := engine.Mask(`{"a":"Token=t1;x=1;Token=t2;"}`)
		want := `{"a":"Token=***MASKED***;x=1;Token=***MASKED***;"}`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})

	t.Run("SegmentWithoutSemicolonUntouched", func(t *testing.T) {
		// The terminator is part of the pattern
		in := `{"a":"Password=dangling"}`
		if got := engine.Mask(in); got != in {
			t.Errorf("Mask = %s, want unchanged %s", got, in)
		}
	})

	t.Run("SubstringNameOvermatch", func(t *testing.T) {
		// Key is a suffix of MonkeyKey; the segment pattern is unanchored
		// so masking starts at the embedded name
		got := engine.Mask(`{"note":"MonkeyKey=abc;"}`)
		want := `{"note":"Monkey` + `Key=***MASKED***;"}`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})

	t.Run("ApiKeySegmentTalliesBothRules", func(t *testing.T) {
		// ApiKey masks first; the Key pattern then re-matches the already
		// masked segment, so both rules report a hit
		result := engine.Process(`{"a":"ApiKey=xyz;"}`)
		if result.Masked != `{"a":"ApiKey=***MASKED***;"}` {
			t.Errorf("Masked = %s", result.Masked)
		}
		rules := make(map[string]int)
		for _, f := range result.Findings {
			rules[f.Rule] = f.Hits
		}
		if rules["ApiKey"] != 1 || rules["Key"] != 1 {
			t.Errorf("Findings = %+v, want ApiKey and Key hits", result.Findings)
		}
	})

	t.Run("TopLevelStringScanned", func(t *testing.T) {
		got := engine.Mask(`"Server=x;Secret=s;"`)
		want := `"Server=x;Secret=***MASKED***;"`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})
}

// TestFallbackMasking tests the regex path over malformed input
func TestFallbackMasking(t *testing.T) {
	engine := New(WithLogger(zap.NewNop()))

	t.Run("TruncatedDocument", func(t *testing.T) {
		result := engine.Process(`{"Username": "john", "Password": "secret123"`)

		if !result.Fallback {
			t.Fatal("Malformed input did not take the fallback path")
		}
		// Whitespace outside the matched value stays byte-identical
		want := `{"Username": "john", "Password": "***MASKED***"`
		if result.Masked != want {
			t.Errorf("Masked = %s, want %s", result.Masked, want)
		}
	})

	t.Run("PlainTextSegments", func(t *testing.T) {
		result := engine.Process(`connect with Password=abc;Token=def; please`)

		if !result.Fallback {
			t.Fatal("Plain text did not take the fallback path")
		}
		want := `connect with Password=***MASKED***;Token=***MASKED***; please`
		if result.Masked != want {
			t.Errorf("Masked = %s, want %s", result.Masked, want)
		}
		if len(result.Findings) != 2 {
			t.Errorf("Findings count = %d, want 2", len(result.Findings))
		}
	})

	t.Run("TrailingContentFallsBack", func(t *testing.T) {
		result := engine.Process(`{"a":1}{"Password":"x"}`)
		if !result.Fallback {
			t.Fatal("Trailing content did not take the fallback path")
		}
		if !strings.Contains(result.Masked, `"Password":"***MASKED***"`) {
			t.Errorf("Masked = %s, want password value masked", result.Masked)
		}
	})

	t.Run("NoMatchIsIdentity", func(t *testing.T) {
		in := `this is not json and has no secrets`
		result := engine.Process(in)
		if result.Masked != in {
			t.Errorf("Masked = %q, want unchanged", result.Masked)
		}
		if !result.Fallback {
			t.Error("Malformed input did not report fallback")
		}
		if len(result.Findings) != 0 {
			t.Errorf("Findings count = %d, want 0", len(result.Findings))
		}
	})

	t.Run("QuotedKeyIsAnchoredByQuotes", func(t *testing.T) {
		// "UserPassword" is not "Password": the pair pattern requires the
		// opening quote directly before the name
		in := `{"UserPassword": "keepme"`
		if got := engine.Mask(in); got != in {
			t.Errorf("Mask = %s, want unchanged %s", got, in)
		}
	})
}

// TestEngineConfiguration tests pattern and name overrides
func TestEngineConfiguration(t *testing.T) {
	t.Run("CustomPattern", func(t *testing.T) {
		engine := New(WithPattern("[redacted]"), WithLogger(zap.NewNop()))
		got := engine.Mask(`{"Password":"x"}`)
		want := `{"Password":"[redacted]"}`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})

	t.Run("DollarSignsInPattern", func(t *testing.T) {
		// Dollar signs must not read as regex group references on the
		// fallback path
		engine := New(WithPattern("$$$"), WithLogger(zap.NewNop()))
		got := engine.Mask(`Password=abc;`)
		want := `Password=$$$;`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})

	t.Run("CustomNames", func(t *testing.T) {
		engine := New(WithSensitiveNames("Pin", "Cvv"), WithLogger(zap.NewNop()))

		got := engine.Mask(`{"Pin":"1234","Password":"kept"}`)
		want := `{"Pin":"***MASKED***","Password":"kept"}`
		if got != want {
			t.Errorf("Mask = %s, want %s", got, want)
		}
	})

	t.Run("FindingsFollowConfiguredOrder", func(t *testing.T) {
		engine := New(WithLogger(zap.NewNop()))
		result := engine.Process(`{"Card":"1","Password":"2","Token":"3"}`)

		order := make([]string, len(result.Findings))
		for i, f := range result.Findings {
			order[i] = f.Rule
		}
		want := []string{"Password", "Token", "Card"}
		if len(order) != len(want) {
			t.Fatalf("Findings count = %d, want %d", len(order), len(want))
		}
		for i := range want {
			if order[i] != want[i] {
				t.Errorf("Findings order = %v, want %v", order, want)
				break
			}
		}
	})

	t.Run("FingerprintTracksSettings", func(t *testing.T) {
		base := New(WithLogger(zap.NewNop()))
		same := New(WithLogger(zap.NewNop()))
		if base.Fingerprint() != same.Fingerprint() {
			t.Error("identical configurations produced different fingerprints")
		}

		repatterned := New(WithPattern("[x]"), WithLogger(zap.NewNop()))
		if base.Fingerprint() == repatterned.Fingerprint() {
			t.Error("pattern change kept the fingerprint")
		}

		renamed := New(WithSensitiveNames("Pin"), WithLogger(zap.NewNop()))
		if base.Fingerprint() == renamed.Fingerprint() {
			t.Error("name-set change kept the fingerprint")
		}
	})

	t.Run("SensitiveNamesCopy", func(t *testing.T) {
		engine := New(WithLogger(zap.NewNop()))
		names := engine.SensitiveNames()
		names[0] = "mutated"
		if engine.SensitiveNames()[0] == "mutated" {
			t.Error("SensitiveNames leaked internal state")
		}
	})
}

// TestMaskingIdempotence tests that masking already masked output changes nothing
func TestMaskingIdempotence(t *testing.T) {
	engine := New(WithLogger(zap.NewNop()))

	inputs := []string{
		`{"Username":"john","Password":"secret123"}`,
		`{"Conn":"Server=db;Password=hunter2;"}`,
		`{"Password": "secret"`,
		`Password=abc;Token=def;`,
		`{"nested":{"ApiKey":"k","list":[{"Ssn":"123-45-6789"}]}}`,
	}

	for _, in := range inputs {
		once := engine.Mask(in)
		twice := engine.Mask(once)
		if once != twice {
			t.Errorf("Mask not idempotent for %q:\n once: %s\ntwice: %s", in, once, twice)
		}
	}
}
