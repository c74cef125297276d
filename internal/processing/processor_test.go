package processing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/stat-radar/backend/internal/processing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "California,   USA!", want: "California USA"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "html entity", input: "Trinidad &amp; Tobago", want: "Trinidad Tobago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processing.CleanText(tt.input); got != tt.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePlaceName(t *testing.T) {
	require.Equal(t, "california usa", processing.NormalizePlaceName("California, USA"))
	require.Equal(t, "california usa", processing.NormalizePlaceName("  california   usa "))
	require.Equal(t, "são paulo", processing.NormalizePlaceName("São Paulo"))
	require.Equal(t, "", processing.NormalizePlaceName(" , "))
}

func TestPlaceLookupKeys(t *testing.T) {
	got := processing.PlaceLookupKeys("California", []string{"CA", "california"}, []string{"USA", "United States"})
	want := []string{"california", "ca", "california usa", "california united states"}
	require.Equal(t, want, got)
}

func TestExtractKeywords(t *testing.T) {
	text := "Unemployment rate of the labor force, unemployment by age"
	got := processing.ExtractKeywords(text, 3, 3)
	want := []string{"unemployment", "age", "force"}
	require.Equal(t, want, got)

	require.Nil(t, processing.ExtractKeywords("", 5, 3))
	require.Nil(t, processing.ExtractKeywords("of the and", 5, 1))
}

func TestBuildDocumentID(t *testing.T) {
	id1 := processing.BuildDocumentID("Count_Person", "country/USA", "2020")
	id2 := processing.BuildDocumentID("Count_Person", "country/USA", "2020")
	id3 := processing.BuildDocumentID("Count_Person", "country/USA", "2021")
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}

func TestHumanizeDCID(t *testing.T) {
	tests := []struct {
		name string
		dcid string
		want string
	}{
		{name: "empty", dcid: "", want: ""},
		{name: "underscores", dcid: "Count_Person_Female", want: "Count Person Female"},
		{name: "topic path", dcid: "dc/topic/HealthInsurance", want: "Health Insurance"},
		{name: "trailing slash", dcid: "country/", want: "country"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.HumanizeDCID(tt.dcid))
		})
	}
}
