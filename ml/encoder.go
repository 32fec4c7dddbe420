package ml

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// LabelEncoder maps category strings to integer codes. Codes follow the
// lexicographic order of the distinct categories, so they do not depend on
// row order.
type LabelEncoder struct {
	classes []string
	codes   map[string]int
}

func NewLabelEncoder(column []string) (*LabelEncoder, error) {
	seen := make(map[string]struct{})
	for i, v := range column {
		if strings.TrimSpace(v) == "" {
			return nil, errors.Wrapf(ErrEncoding, "missing category at row %d", i)
		}
		seen[v] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, errors.Wrap(ErrDegenerateInput, "no categories to encode")
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return newEncoderFromClasses(classes), nil
}

func newEncoderFromClasses(classes []string) *LabelEncoder {
	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		codes[c] = i
	}
	return &LabelEncoder{classes: classes, codes: codes}
}

func (e *LabelEncoder) Encode(category string) (int, error) {
	code, ok := e.codes[category]
	if !ok {
		return 0, errors.Wrapf(ErrEncoding, "unknown category %q", category)
	}
	return code, nil
}

func (e *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.classes) {
		return "", errors.Wrapf(ErrEncoding, "unknown code %d", code)
	}
	return e.classes[code], nil
}

func (e *LabelEncoder) Transform(column []string) ([]int, error) {
	out := make([]int, len(column))
	for i, v := range column {
		code, err := e.Encode(v)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out[i] = code
	}
	return out, nil
}

// Classes returns the categories in code order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

func (e *LabelEncoder) Len() int {
	return len(e.classes)
}

// Mapping returns category -> code, handy for display.
func (e *LabelEncoder) Mapping() map[string]int {
	out := make(map[string]int, len(e.codes))
	for k, v := range e.codes {
		out[k] = v
	}
	return out
}

func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.classes)
}

func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var classes []string
	if err := json.Unmarshal(data, &classes); err != nil {
		return err
	}
	if !sort.StringsAreSorted(classes) {
		return errors.Wrap(ErrEncoding, "encoder classes must be sorted")
	}
	*e = *newEncoderFromClasses(classes)
	return nil
}
