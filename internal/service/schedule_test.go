package service

import (
	"testing"
	"time"
)

func TestCronNext(t *testing.T) {
	base := time.Date(2026, 3, 14, 3, 59, 30, 0, time.UTC) // Saturday
	tests := []struct {
		expr  string
		after time.Time
		want  time.Time
	}{
		{"0 4 * * *", base, time.Date(2026, 3, 14, 4, 0, 0, 0, time.UTC)},
		{"0 4 * * *", base.Add(time.Minute), time.Date(2026, 3, 15, 4, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", base, time.Date(2026, 3, 14, 4, 0, 0, 0, time.UTC)},
		{"30 2 1 * *", base, time.Date(2026, 4, 1, 2, 30, 0, 0, time.UTC)},
		{"0 9 * * 1-5", base, time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)},
		{"0 0,12 * * *", base, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
		{"0 4 * * *", time.Date(2026, 3, 14, 4, 0, 0, 0, time.UTC), time.Date(2026, 3, 15, 4, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := parseCron(tt.expr)
			if err != nil {
				t.Fatalf("parseCron(%q) error = %v", tt.expr, err)
			}
			got, err := sched.next(tt.after)
			if err != nil {
				t.Fatalf("next() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("next(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 4 * * *", false},
		{"*/5 1-3 * * 0,6", false},
		{"0 4 * *", true},
		{"60 4 * * *", true},
		{"0 24 * * *", true},
		{"0 4 0 * *", true},
		{"a 4 * * *", true},
		{"*/0 * * * *", true},
		{"5-1 * * * *", true},
	}
	for _, tt := range tests {
		err := ValidateCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestCronImpossibleDate(t *testing.T) {
	sched, err := parseCron("0 0 31 2 *")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sched.next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("next() for Feb 31 error = nil")
	}
}
