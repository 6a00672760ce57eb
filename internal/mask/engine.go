package mask

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// serializationErrorPayload is returned when a transformed tree cannot be
// re-encoded. Callers must treat it as terminal output, not retry it.
const serializationErrorPayload = `{"error":"serialization failed"}`

// Engine masks sensitive values in JSON payloads. Well-formed documents are
// transformed structurally (by key) and textually (embedded Name=value;
// segments inside string values); malformed input falls back to a regex
// pass over the raw text. An Engine is immutable and safe for concurrent
// use.
type Engine struct {
	pattern     string
	replacement string              // pattern with regex group references escaped
	fingerprint string              // digest of pattern + name set
	names       []string            // canonical names, configured order
	nameSet     map[string]string   // lowercased name -> canonical name
	rules       map[string]nameRule // canonical name -> compiled patterns
	logger      *zap.Logger
}

// nameRule holds the compiled fallback patterns for one sensitive name.
type nameRule struct {
	pair    *regexp.Regexp // "Name": "value"
	segment *regexp.Regexp // Name=value;
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	pattern string
	names   []string
	logger  *zap.Logger
}

// WithPattern overrides the replacement string.
func WithPattern(pattern string) Option {
	return func(o *options) { o.pattern = pattern }
}

// WithSensitiveNames replaces the default sensitive-name set.
func WithSensitiveNames(names ...string) Option {
	return func(o *options) { o.names = names }
}

// WithLogger attaches a logger for per-operation debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a masking engine. Without options it uses DefaultPattern and
// DefaultSensitiveNames.
func New(opts ...Option) *Engine {
	o := options{
		pattern: DefaultPattern,
		names:   DefaultSensitiveNames,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		pattern: o.pattern,
		nameSet: make(map[string]string, len(o.names)),
		rules:   make(map[string]nameRule, len(o.names)),
		logger:  o.logger,
	}

	// The replacement is spliced into a regex template, so literal dollar
	// signs in the pattern must not read as group references.
	e.replacement = strings.ReplaceAll(o.pattern, "$", "$$")

	for _, name := range o.names {
		lower := strings.ToLower(name)
		if _, exists := e.nameSet[lower]; exists {
			continue
		}
		e.nameSet[lower] = name
		e.names = append(e.names, name)

		quoted := regexp.QuoteMeta(name)
		e.rules[name] = nameRule{
			// Quoted key-value pairs: "Name": "value". Unanchored on
			// purpose; a name that is a substring of a longer key still
			// matches, mirroring the connection-string pattern below.
			pair: regexp.MustCompile(`(?i)("` + quoted + `"\s*:\s*")([^"]*)(")`),
			// Semicolon-delimited segments: Name=value;
			segment: regexp.MustCompile(`(?i)(` + quoted + `=)([^;]*)(;)`),
		}
	}

	digest := sha256.New()
	digest.Write([]byte(e.pattern))
	for _, name := range e.names {
		digest.Write([]byte{0})
		digest.Write([]byte(strings.ToLower(name)))
	}
	e.fingerprint = hex.EncodeToString(digest.Sum(nil))

	return e
}

// Pattern returns the configured replacement string.
func (e *Engine) Pattern() string { return e.pattern }

// Fingerprint identifies the engine configuration: two engines with the
// same fingerprint mask any payload identically. Callers caching masked
// output must key by it so stale entries die with the settings that
// produced them.
func (e *Engine) Fingerprint() string { return e.fingerprint }

// SensitiveNames returns the configured names in their original order.
func (e *Engine) SensitiveNames() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Mask returns data with sensitive values replaced. Empty input is returned
// unchanged. Malformed input never raises; it takes the fallback path.
func (e *Engine) Mask(data string) string {
	return e.Process(data).Masked
}

// Process masks data and reports which sensitive names matched.
func (e *Engine) Process(data string) Result {
	if data == "" {
		return Result{Masked: data, Findings: []Finding{}, Original: data}
	}

	tally := make(map[string]int, len(e.names))

	root, err := Parse(data)
	if err != nil {
		// Malformed input is not an error to the caller; scan the raw
		// text instead.
		masked := e.maskRaw(data, tally)
		result := Result{
			Masked:   masked,
			Findings: e.findings(tally),
			Fallback: true,
			Original: data,
		}
		e.logProcessed(result)
		return result
	}

	transformed := e.maskValue(root, tally)

	encoded, err := transformed.Encode()
	if err != nil {
		e.logger.Error("Failed to re-encode masked tree", zap.Error(err))
		return Result{
			Masked:   serializationErrorPayload,
			Findings: e.findings(tally),
			Original: data,
		}
	}

	result := Result{
		Masked:   encoded,
		Findings: e.findings(tally),
		Original: data,
	}
	e.logProcessed(result)
	return result
}

// maskValue transforms one node, producing a new tree.
func (e *Engine) maskValue(v Value, tally map[string]int) Value {
	switch v.Kind {
	case KindObject:
		members := make([]Member, len(v.Members))
		for i, m := range v.Members {
			if canonical, ok := e.nameSet[strings.ToLower(m.Key)]; ok {
				// The whole value is replaced with the pattern as a
				// string, regardless of its original type.
				members[i] = Member{Key: m.Key, Value: Value{Kind: KindString, Str: e.pattern}}
				tally[canonical]++
				continue
			}
			members[i] = Member{Key: m.Key, Value: e.maskValue(m.Value, tally)}
		}
		return Value{Kind: KindObject, Members: members}

	case KindArray:
		items := make([]Value, len(v.Items))
		for i, item := range v.Items {
			items[i] = e.maskValue(item, tally)
		}
		return Value{Kind: KindArray, Items: items}

	case KindString:
		// Sensitive material often hides inside connection-string-like
		// values under harmless keys.
		return Value{Kind: KindString, Str: e.maskSegments(v.Str, tally)}

	default:
		// Numbers, booleans and null pass through unchanged
		return v
	}
}

// maskSegments masks Name=value; occurrences inside a string value.
func (e *Engine) maskSegments(s string, tally map[string]int) string {
	for _, name := range e.names {
		rule := e.rules[name]
		if hits := len(rule.segment.FindAllStringIndex(s, -1)); hits > 0 {
			s = rule.segment.ReplaceAllString(s, "${1}"+e.replacement+"${3}")
			tally[name] += hits
		}
	}
	return s
}

// maskRaw is the fallback for text that does not parse as a document. Both
// per-name patterns run over the raw text; everything outside the captured
// values stays byte-identical.
func (e *Engine) maskRaw(data string, tally map[string]int) string {
	for _, name := range e.names {
		rule := e.rules[name]
		if hits := len(rule.pair.FindAllStringIndex(data, -1)); hits > 0 {
			data = rule.pair.ReplaceAllString(data, "${1}"+e.replacement+"${3}")
			tally[name] += hits
		}
		if hits := len(rule.segment.FindAllStringIndex(data, -1)); hits > 0 {
			data = rule.segment.ReplaceAllString(data, "${1}"+e.replacement+"${3}")
			tally[name] += hits
		}
	}
	return data
}

// findings converts a tally into Findings ordered by configured name order.
func (e *Engine) findings(tally map[string]int) []Finding {
	findings := make([]Finding, 0, len(tally))
	for _, name := range e.names {
		if hits := tally[name]; hits > 0 {
			findings = append(findings, Finding{
				Rule:   name,
				Masked: e.pattern,
				Hits:   hits,
			})
		}
	}
	return findings
}

func (e *Engine) logProcessed(r Result) {
	if len(r.Findings) == 0 {
		return
	}
	e.logger.Debug("Sensitive data masked",
		zap.Int("findings_count", len(r.Findings)),
		zap.Bool("fallback", r.Fallback),
	)
}
