package prompts

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alemoreirac/maria-aux-back/internal/providers"
)

// Kind selects the dispatch path for a template.
type Kind int

const (
	KindText      Kind = 1
	KindFile      Kind = 2
	KindWebSearch Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindFile:
		return "file"
	case KindWebSearch:
		return "web_search"
	default:
		return "kind_" + strconv.Itoa(int(k))
	}
}

func (k Kind) Valid() bool {
	return k == KindText || k == KindFile || k == KindWebSearch
}

// ParamKind is the declared value kind of a parameter slot.
type ParamKind int

const (
	ParamText    ParamKind = 1
	ParamNumeric ParamKind = 2
	ParamPDF     ParamKind = 3
	ParamDOCX    ParamKind = 4
	ParamXLSX    ParamKind = 5
	ParamTXT     ParamKind = 6
	ParamImage   ParamKind = 7
	ParamXLS     ParamKind = 8
	ParamCSV     ParamKind = 9
)

var paramKindNames = map[ParamKind]string{
	ParamText:    "TEXT",
	ParamNumeric: "NUMERIC",
	ParamPDF:     "PDF",
	ParamDOCX:    "DOCX",
	ParamXLSX:    "XLSX",
	ParamTXT:     "TXT",
	ParamImage:   "IMAGE",
	ParamXLS:     "XLS",
	ParamCSV:     "CSV",
}

func (k ParamKind) String() string {
	if n, ok := paramKindNames[k]; ok {
		return n
	}
	return "PARAM_" + strconv.Itoa(int(k))
}

func (k ParamKind) Valid() bool {
	_, ok := paramKindNames[k]
	return ok
}

// IsBinary reports whether values of this kind travel as a file payload.
func (k ParamKind) IsBinary() bool {
	return k != ParamText && k != ParamNumeric
}

type Capabilities struct {
	Reasoning bool `json:"has_reasoning"`
	Search    bool `json:"has_search"`
	Files     bool `json:"has_files"`
	Photo     bool `json:"has_photo"`
}

// Template is a stored prompt together with its parameter schema.
type Template struct {
	ID                int64        `json:"id"`
	Title             string       `json:"title"`
	Content           string       `json:"content"`
	Description       string       `json:"description"`
	Category          int          `json:"category"`
	Kind              Kind         `json:"kind"`
	PreferredProvider providers.ID `json:"preferred_provider,omitempty"`
	Capabilities
	Parameters []Parameter `json:"parameters"`
}

type Parameter struct {
	ID          int64     `json:"id"`
	PromptID    int64     `json:"prompt_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Kind        ParamKind `json:"kind"`
}

// Value is a filled parameter value: text, number or binary, never more than one.
type Value struct {
	kind   ParamKind
	text   string
	number float64
	data   []byte
}

func TextValue(s string) Value { return Value{kind: ParamText, text: s} }

func NumberValue(n float64) Value { return Value{kind: ParamNumeric, number: n} }

func BinaryValue(kind ParamKind, data []byte) Value { return Value{kind: kind, data: data} }

func (v Value) Kind() ParamKind { return v.kind }

func (v Value) IsZero() bool {
	switch {
	case v.kind == 0:
		return true
	case v.kind == ParamText:
		return strings.TrimSpace(v.text) == ""
	case v.kind == ParamNumeric:
		return false
	default:
		return len(v.data) == 0
	}
}

func (v Value) Bytes() []byte { return v.data }

// String renders the value as it appears in a prompt. Binary values render
// as a short descriptor, never their content.
func (v Value) String() string {
	switch {
	case v.kind == ParamText:
		return v.text
	case v.kind == ParamNumeric:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case v.kind == 0:
		return ""
	default:
		return fmt.Sprintf("<%s %d bytes>", v.kind, len(v.data))
	}
}

var ErrInvalidValue = errors.New("invalid parameter value")

// DecodeValue interprets raw JSON according to the declared kind.
func DecodeValue(kind ParamKind, raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Value{kind: kind}, nil
	}
	switch {
	case kind == ParamText:
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return TextValue(s), nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return TextValue(n.String()), nil
		}
		return Value{}, fmt.Errorf("%w: %s expects a string", ErrInvalidValue, kind)
	case kind == ParamNumeric:
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return NumberValue(n), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return NumberValue(f), nil
			}
		}
		return Value{}, fmt.Errorf("%w: %s expects a number", ErrInvalidValue, kind)
	case kind.Valid():
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("%w: %s expects base64 text", ErrInvalidValue, kind)
		}
		data, err := decodeBase64(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s: %v", ErrInvalidValue, kind, err)
		}
		return BinaryValue(kind, data), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown parameter kind %d", ErrInvalidValue, int(kind))
	}
}

// decodeBase64 accepts plain or data-URI base64, padded or not.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ";base64,"); i >= 0 {
			s = s[i+len(";base64,"):]
		}
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// FilledParameter is one caller-supplied value for a template slot.
type FilledParameter struct {
	Title string
	Kind  ParamKind
	Value Value
}

type filledParameterJSON struct {
	Title string          `json:"title"`
	Kind  ParamKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (p *FilledParameter) UnmarshalJSON(b []byte) error {
	var raw filledParameterJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := DecodeValue(raw.Kind, raw.Value)
	if err != nil {
		return fmt.Errorf("parameter %q: %w", raw.Title, err)
	}
	p.Title, p.Kind, p.Value = raw.Title, raw.Kind, v
	return nil
}

func (p FilledParameter) MarshalJSON() ([]byte, error) {
	var value any
	switch {
	case p.Value.kind == ParamText:
		value = p.Value.text
	case p.Value.kind == ParamNumeric:
		value = p.Value.number
	case p.Value.kind != 0:
		value = base64.StdEncoding.EncodeToString(p.Value.data)
	}
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(filledParameterJSON{Title: p.Title, Kind: p.Kind, Value: v})
}

// FirstFile returns the first parameter whose declared kind is binary and
// that carries data.
func FirstFile(params []FilledParameter) (FilledParameter, bool) {
	for _, p := range params {
		if p.Kind.IsBinary() && len(p.Value.Bytes()) > 0 {
			return p, true
		}
	}
	return FilledParameter{}, false
}
