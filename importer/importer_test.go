package importer

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSplitTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"food", []string{"food"}},
		{" food , trip,, food ", []string{"food", "trip"}},
		{" , ", nil},
	}
	for _, tt := range tests {
		if got := SplitTags(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("SplitTags(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCheckRow(t *testing.T) {
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(10)
	zero := decimal.Zero
	tests := []struct {
		name    string
		row     Row
		wantErr bool
	}{
		{"complete", Row{Date: &date, Amount: &amount}, false},
		{"zero amount is an amount", Row{Date: &date, Amount: &zero}, false},
		{"no date", Row{Amount: &amount}, true},
		{"zero date", Row{Date: &time.Time{}, Amount: &amount}, true},
		{"no amount", Row{Date: &date}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRow(tt.row)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkRow() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errMissingData) {
				t.Fatalf("expected errMissingData, got %v", err)
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "usd", "BRL"); got != "usd" {
		t.Fatalf("got %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("got %q", got)
	}
}
