package dataset

import (
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadOptions controls how the source file is decoded.
type LoadOptions struct {
	// Delimiter defaults to ','.
	Delimiter rune
	// Encoding is one of "utf-8" (default), "euc-kr" or "gbk".
	Encoding string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var columnTypes = map[string]series.Type{
	ColumnAge:    series.Int,
	ColumnGender: series.String,
	ColumnHeight: series.Float,
	ColumnWeight: series.Float,
	ColumnBMI:    series.Float,
	ColumnLabel:  series.String,
}

// Load reads the delimited file at path into records.
func Load(path string, opts LoadOptions) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrLoad, "open %s: %v", path, err)
	}
	defer f.Close()

	records, err := Read(f, opts)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return records, nil
}

// Read parses records from r. Columns beyond the required ones are ignored.
func Read(r io.Reader, opts LoadOptions) ([]Record, error) {
	decoder, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(transform.NewReader(r, decoder.NewDecoder()))
	if err != nil {
		return nil, errors.Wrapf(ErrLoad, "decode %s input: %v", opts.Encoding, err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return nil, errors.Wrap(ErrLoad, "input is not valid text in the configured encoding")
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(ErrLoad, "parse csv: %v", err)
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(ErrLoad, "missing header row")
	}

	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}
	if len(rows) == 1 {
		return []Record{}, nil
	}

	df := dataframe.LoadRecords(rows,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(columnTypes),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return nil, errors.Wrapf(ErrLoad, "build frame: %v", df.Err)
	}
	return fromFrame(df)
}

func checkHeader(header []string) error {
	present := make(map[string]bool, len(header))
	for _, name := range header {
		if present[name] && columnTypes[name] != "" {
			return errors.Wrapf(ErrLoad, "duplicate column %q", name)
		}
		present[name] = true
	}
	var missing []string
	for _, name := range RequiredColumns {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrLoad, "missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func fromFrame(df dataframe.DataFrame) ([]Record, error) {
	n := df.Nrow()
	for _, name := range []string{ColumnAge, ColumnHeight, ColumnWeight, ColumnBMI} {
		for i, bad := range df.Col(name).IsNaN() {
			if bad {
				// row numbers are 1-based and count the header line
				return nil, errors.Wrapf(ErrLoad, "non-numeric %s at line %d", name, i+2)
			}
		}
	}
	ages, err := df.Col(ColumnAge).Int()
	if err != nil {
		return nil, errors.Wrapf(ErrLoad, "age column: %v", err)
	}
	heights := df.Col(ColumnHeight).Float()
	weights := df.Col(ColumnWeight).Float()
	bmis := df.Col(ColumnBMI).Float()
	genders := df.Col(ColumnGender).Records()
	labels := df.Col(ColumnLabel).Records()

	out := make([]Record, n)
	for i := 0; i < n; i++ {
		if math.IsInf(heights[i], 0) || math.IsInf(weights[i], 0) || math.IsInf(bmis[i], 0) {
			return nil, errors.Wrapf(ErrLoad, "infinite value at line %d", i+2)
		}
		out[i] = Record{
			Age:    ages[i],
			Gender: strings.TrimSpace(genders[i]),
			Height: heights[i],
			Weight: weights[i],
			BMI:    bmis[i],
			Label:  strings.TrimSpace(labels[i]),
		}
	}
	return out, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "euc-kr", "euckr", "cp949":
		return korean.EUCKR, nil
	case "gbk":
		return simplifiedchinese.GBK, nil
	default:
		return nil, errors.Wrapf(ErrLoad, "unsupported encoding %q", name)
	}
}
