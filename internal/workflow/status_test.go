package workflow

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusSelected, true},
		{StatusIdle, StatusUploading, false},
		{StatusSelected, StatusUploading, true},
		{StatusSelected, StatusAnalyzing, false},
		{StatusUploading, StatusUploaded, true},
		{StatusUploading, StatusSelected, false},
		{StatusUploaded, StatusAnalyzing, true},
		{StatusAnalyzing, StatusFailed, true},
		{StatusAnalyzed, StatusAnalyzing, false},
		{StatusFailed, StatusUploading, true},
		{StatusFailed, StatusAnalyzing, true},
		{StatusAnalyzing, StatusIdle, true},
		{Status("bogus"), StatusIdle, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestInFlightStatuses(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusSelected, StatusUploaded, StatusAnalyzed, StatusFailed} {
		if s.InFlight() {
			t.Fatalf("%s should not be in flight", s)
		}
	}
	if !StatusUploading.InFlight() || !StatusAnalyzing.InFlight() {
		t.Fatalf("uploading and analyzing must be in flight")
	}
}

func TestAnalysisResultValidation(t *testing.T) {
	valid := AnalysisResult{
		Products:  []Product{{Name: "Planter", Items: []string{"bottle"}, Steps: []string{"cut top"}}},
		Locations: []Location{{Name: "Depot", MapLink: "https://maps.google.com/?q=depot"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid result, got %v", err)
	}

	missingName := AnalysisResult{Products: []Product{{Items: []string{"bottle"}}}}
	if err := missingName.Validate(); !errors.Is(err, errValidation) {
		t.Fatalf("expected validation error for product without name, got %v", err)
	}

	badLink := AnalysisResult{Locations: []Location{{Name: "Depot", MapLink: "not a url"}}}
	if err := badLink.Validate(); err == nil {
		t.Fatalf("expected validation error for malformed map link")
	}
}

func TestAnalysisResultDecodesServerJSON(t *testing.T) {
	payload := `{"products":[{"name":"Planter","items":["bottle"],"steps":["cut top"]}],
		"locations":[{"name":"Depot","mapLink":"https://maps.example.com/depot"}]}`
	var res AnalysisResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Locations[0].MapLink != "https://maps.example.com/depot" {
		t.Fatalf("mapLink not decoded: %+v", res.Locations)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestUploadResultRequiresData(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		res := UploadResult{ID: "u1", Data: json.RawMessage(raw)}
		if raw == "" {
			res.Data = nil
		}
		if err := res.Validate(); !errors.Is(err, errValidation) {
			t.Fatalf("expected validation error for data %q, got %v", raw, err)
		}
	}
	ok := UploadResult{ID: "u1", Data: json.RawMessage(`{"k":1}`)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
