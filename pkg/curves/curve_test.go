package curves

import (
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	week := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	c, err := New("milk", week, []int{0, 720, 1440}, []float64{0, 10, 20})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(c.Samples) != 3 {
		t.Fatalf("len(Samples) = %d, want 3", len(c.Samples))
	}
	if c.Samples[1].Offset != 720 || c.Samples[1].Value != 10 {
		t.Errorf("Samples[1] = %+v, want {720 10}", c.Samples[1])
	}

	_, err = New("milk", week, []int{0, 1}, []float64{1})
	if !errors.Is(err, ErrMalformedCurve) {
		t.Errorf("New() with mismatched lengths error = %v, want ErrMalformedCurve", err)
	}
}

func TestCurve_Validate(t *testing.T) {
	week := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		samples []Sample
		wantErr bool
	}{
		{
			name:    "valid",
			samples: []Sample{{0, 1}, {1, 2}, {10079, 3}},
		},
		{
			name:    "single sample",
			samples: []Sample{{5, 1}},
		},
		{
			name:    "empty",
			samples: nil,
			wantErr: true,
		},
		{
			name:    "duplicate offset",
			samples: []Sample{{0, 1}, {0, 2}},
			wantErr: true,
		},
		{
			name:    "decreasing offsets",
			samples: []Sample{{5, 1}, {3, 2}},
			wantErr: true,
		},
		{
			name:    "negative offset",
			samples: []Sample{{-1, 1}},
			wantErr: true,
		},
		{
			name:    "offset past week end",
			samples: []Sample{{0, 1}, {MinutesPerWeek, 2}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Curve{Product: "p", WeekStart: week, Samples: tt.samples}
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedCurve) {
				t.Errorf("Validate() error = %v, want ErrMalformedCurve", err)
			}
		})
	}
}

func TestCurve_Timestamps(t *testing.T) {
	week := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Curve{WeekStart: week, Samples: []Sample{{0, 1}, {MinutesPerWeek - 1, 2}}}

	ts := c.Timestamps()

	want := []time.Time{week, time.Date(2023, 1, 7, 23, 59, 0, 0, time.UTC)}
	for i := range want {
		if !ts[i].Equal(want[i]) {
			t.Errorf("Timestamps()[%d] = %v, want %v", i, ts[i], want[i])
		}
	}
}

func TestParseWeek(t *testing.T) {
	got, err := ParseWeek("26.12.2020")
	if err != nil {
		t.Fatalf("ParseWeek() error = %v", err)
	}
	want := time.Date(2020, 12, 26, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseWeek() = %v, want %v", got, want)
	}
	if s := FormatWeek(got); s != "26.12.2020" {
		t.Errorf("FormatWeek() = %q, want %q", s, "26.12.2020")
	}

	for _, bad := range []string{"", "2020-12-26", "32.12.2020", "26/12/2020"} {
		if _, err := ParseWeek(bad); !errors.Is(err, ErrInvalidWeek) {
			t.Errorf("ParseWeek(%q) error = %v, want ErrInvalidWeek", bad, err)
		}
	}
}
