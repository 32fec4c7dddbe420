package dataset

import "github.com/pkg/errors"

// ErrLoad is returned, wrapped, for every failure to turn a file into records.
var ErrLoad = errors.New("dataset load failed")

// Required header columns, in the order they are read.
const (
	ColumnAge    = "Age"
	ColumnGender = "Gender"
	ColumnHeight = "Height"
	ColumnWeight = "Weight"
	ColumnBMI    = "BMI"
	ColumnLabel  = "Label"
)

var RequiredColumns = []string{ColumnAge, ColumnGender, ColumnHeight, ColumnWeight, ColumnBMI, ColumnLabel}

// Record is one observation. Height is in centimetres, Weight in kilograms.
type Record struct {
	Age    int     `json:"age"`
	Gender string  `json:"gender"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
	BMI    float64 `json:"bmi"`
	Label  string  `json:"label"`
}

func Genders(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Gender
	}
	return out
}

func Labels(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Label
	}
	return out
}
