package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/korean"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

const sampleCSV = `ID,Age,Gender,Height,Weight,BMI,Label
1,25,Male,175,80,25.3,Normal Weight
2,30,Female,160,60,23.4,Normal Weight
3,35,Male,180,90,27.8,Overweight
`

func TestLoad(t *testing.T) {
	path := writeFile(t, "obesity.csv", []byte(sampleCSV))
	records, err := Load(path, LoadOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	want := Record{Age: 35, Gender: "Male", Height: 180, Weight: 90, BMI: 27.8, Label: "Overweight"}
	if records[2] != want {
		t.Fatalf("expected %+v, got %+v", want, records[2])
	}
}

func TestLoadHeaderVariants(t *testing.T) {
	t.Run("bom and padded header", func(t *testing.T) {
		content := "\xEF\xBB\xBF Age , Gender,Height,Weight,BMI,Label\n40,Female,150,70,31.1,Obese\n"
		records, err := Read(strings.NewReader(content), LoadOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 || records[0].Age != 40 || records[0].Label != "Obese" {
			t.Fatalf("unexpected records %+v", records)
		}
	})

	t.Run("semicolon delimiter", func(t *testing.T) {
		content := "Age;Gender;Height;Weight;BMI;Label\n18;Male;170;50;17.3;Underweight\n"
		records, err := Read(strings.NewReader(content), LoadOptions{Delimiter: ';'})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if records[0].BMI != 17.3 {
			t.Fatalf("unexpected BMI %f", records[0].BMI)
		}
	})

	t.Run("euc-kr", func(t *testing.T) {
		encoded, err := korean.EUCKR.NewEncoder().String("Age,Gender,Height,Weight,BMI,Label\n22,남성,172,65,22.0,정상\n")
		if err != nil {
			t.Fatalf("encode fixture: %v", err)
		}
		records, err := Read(strings.NewReader(encoded), LoadOptions{Encoding: "euc-kr"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if records[0].Gender != "남성" || records[0].Label != "정상" {
			t.Fatalf("unexpected decoded record %+v", records[0])
		}
	})

	t.Run("header only", func(t *testing.T) {
		records, err := Read(strings.NewReader("Age,Gender,Height,Weight,BMI,Label\n"), LoadOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 0 {
			t.Fatalf("expected no records, got %d", len(records))
		}
	})
}

func TestLoadEmptyCategoryPreserved(t *testing.T) {
	content := "Age,Gender,Height,Weight,BMI,Label\n22,,172,65,22.0,Normal Weight\n"
	records, err := Read(strings.NewReader(content), LoadOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Gender != "" {
		t.Fatalf("expected empty gender, got %q", records[0].Gender)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		opts    LoadOptions
		contain string
	}{
		{"empty file", "", LoadOptions{}, "missing header"},
		{"missing column", "Age,Gender,Height,Weight,Label\n1,Male,1,1,x\n", LoadOptions{}, "BMI"},
		{"non-numeric", "Age,Gender,Height,Weight,BMI,Label\n20,Male,170,70,24.2,Normal\n21,Male,tall,70,24.2,Normal\n", LoadOptions{}, "line 3"},
		{"fractional age", "Age,Gender,Height,Weight,BMI,Label\n20.5,Male,170,70,24.2,Normal\n", LoadOptions{}, "Age"},
		{"ragged row", "Age,Gender,Height,Weight,BMI,Label\n20,Male,170\n", LoadOptions{}, "parse csv"},
		{"unknown encoding", sampleCSV, LoadOptions{Encoding: "latin-9"}, "unsupported encoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.content), tt.opts)
			if !errors.Is(err, ErrLoad) {
				t.Fatalf("expected ErrLoad, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contain) {
				t.Fatalf("expected error to mention %q, got %v", tt.contain, err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv"), LoadOptions{}); !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad for missing file, got %v", err)
	}
}

func TestColumnHelpers(t *testing.T) {
	records := []Record{{Gender: "Male", Label: "Obese"}, {Gender: "Female", Label: "Underweight"}}
	if g := Genders(records); g[1] != "Female" {
		t.Fatalf("unexpected genders %v", g)
	}
	if l := Labels(records); l[0] != "Obese" {
		t.Fatalf("unexpected labels %v", l)
	}
}
