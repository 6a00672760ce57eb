package mask

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Member is a single key/value pair of an object node. Member order matches
// the order keys appeared in the source document.
type Member struct {
	Key   string
	Value Value
}

// Value is a parsed JSON document node. Exactly one variant is populated,
// selected by Kind. Numbers are kept as json.Number so re-encoding emits
// the source digits unchanged.
type Value struct {
	Kind    Kind
	Bool    bool
	Number  json.Number
	Str     string
	Items   []Value
	Members []Member
}

// Parse decodes data into a Value tree. It fails on malformed documents and
// on trailing content after the first document.
func Parse(data string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return Value{}, err
	}

	// A single document must consume the whole input
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("trailing content after document")
	}

	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", t.String())
		}
	case string:
		return Value{Kind: KindString, Str: t}, nil
	case json.Number:
		return Value{Kind: KindNumber, Number: t}, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case nil:
		return Value{Kind: KindNull}, nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

func parseObject(dec *json.Decoder) (Value, error) {
	obj := Value{Kind: KindObject}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key is not a string: %v", keyTok)
		}

		val, err := parseValue(dec)
		if err != nil {
			return Value{}, err
		}

		obj.Members = append(obj.Members, Member{Key: key, Value: val})
	}

	// Consume the closing brace
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}

	return obj, nil
}

func parseArray(dec *json.Decoder) (Value, error) {
	arr := Value{Kind: KindArray}

	for dec.More() {
		val, err := parseValue(dec)
		if err != nil {
			return Value{}, err
		}
		arr.Items = append(arr.Items, val)
	}

	// Consume the closing bracket
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}

	return arr, nil
}

// Encode serializes the tree back to JSON text. Key order, element order,
// and scalar types are preserved exactly.
func (v Value) Encode() (string, error) {
	var b strings.Builder
	if err := v.encode(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (v Value) encode(b *strings.Builder) error {
	switch v.Kind {
	case KindNull:
		b.WriteString("null")

	case KindBool:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}

	case KindNumber:
		if v.Number == "" {
			b.WriteString("0")
		} else {
			b.WriteString(v.Number.String())
		}

	case KindString:
		enc, err := json.Marshal(v.Str)
		if err != nil {
			return fmt.Errorf("failed to encode string value: %w", err)
		}
		b.Write(enc)

	case KindArray:
		b.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := item.encode(b); err != nil {
				return err
			}
		}
		b.WriteByte(']')

	case KindObject:
		b.WriteByte('{')
		for i, m := range v.Members {
			if i > 0 {
				b.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return fmt.Errorf("failed to encode object key: %w", err)
			}
			b.Write(key)
			b.WriteByte(':')
			if err := m.Value.encode(b); err != nil {
				return err
			}
		}
		b.WriteByte('}')

	default:
		return fmt.Errorf("unknown value kind: %d", v.Kind)
	}

	return nil
}
