package pipeline

import (
	"math"
	"math/rand"

	"obesityboard/dataset"
)

var classBands = []struct {
	label    string
	min, max float64
}{
	{"Underweight", 16, 18},
	{"Normal Weight", 19.5, 24},
	{"Overweight", 25.5, 29.5},
	{"Obese", 31, 38},
}

// syntheticRecords builds n records whose label is fully determined by BMI.
func syntheticRecords(n int, seed int64) []dataset.Record {
	rng := rand.New(rand.NewSource(seed))
	records := make([]dataset.Record, n)
	for i := range records {
		band := classBands[i%len(classBands)]
		height := 150 + rng.Float64()*40
		bmi := band.min + rng.Float64()*(band.max-band.min)
		m := height / 100
		gender := "Male"
		if rng.Intn(2) == 0 {
			gender = "Female"
		}
		records[i] = dataset.Record{
			Age:    18 + rng.Intn(50),
			Gender: gender,
			Height: math.Round(height*10) / 10,
			Weight: math.Round(bmi*m*m*10) / 10,
			BMI:    bmi,
			Label:  band.label,
		}
	}
	return records
}
