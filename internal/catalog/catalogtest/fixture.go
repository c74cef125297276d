package catalogtest

import "github.com/DeafMist/stat-radar/backend/internal/models"

// Fixture returns a small catalog: a few countries and US states, an
// ambiguous "Georgia", population, GDP, unemployment, health and trade
// variables, two topics and a handful of series.
func Fixture() *Memory {
	usa := []string{"country/USA"}
	return &Memory{
		Places: []Place{
			{Place: models.Place{DCID: "country/USA", Name: "United States", Type: "Country"}, Aliases: []string{"USA", "United States of America"}},
			{Place: models.Place{DCID: "country/CAN", Name: "Canada", Type: "Country"}},
			{Place: models.Place{DCID: "country/MEX", Name: "Mexico", Type: "Country"}},
			{Place: models.Place{DCID: "country/GEO", Name: "Georgia", Type: "Country"}},
			{Place: models.Place{DCID: "geoId/06", Name: "California", Type: "State", ParentDCIDs: usa}, Aliases: []string{"California, USA"}},
			{Place: models.Place{DCID: "geoId/48", Name: "Texas", Type: "State", ParentDCIDs: usa}, Aliases: []string{"Texas, USA"}},
			{Place: models.Place{DCID: "geoId/12", Name: "Florida", Type: "State", ParentDCIDs: usa}, Aliases: []string{"Florida, USA"}},
			{Place: models.Place{DCID: "geoId/13", Name: "Georgia", Type: "State", ParentDCIDs: usa}, Aliases: []string{"Georgia, USA"}},
			{Place: models.Place{DCID: "geoId/36", Name: "New York", Type: "State", ParentDCIDs: usa}},
		},
		Variables: []Variable{
			{
				Variable:   models.Variable{DCID: "Count_Person", Name: "Total population", Description: "Population count", Topics: []string{"dc/topic/Demographics"}},
				PlaceDCIDs: []string{"country/USA", "country/CAN", "country/MEX", "geoId/06", "geoId/48", "geoId/12"},
			},
			{
				Variable:   models.Variable{DCID: "Count_Person_Female", Name: "Female population", Description: "Population count of females"},
				PlaceDCIDs: []string{"country/USA", "country/CAN"},
			},
			{
				Variable:   models.Variable{DCID: "Amount_EconomicActivity_GDP", Name: "Nominal GDP", Description: "Gross domestic product"},
				PlaceDCIDs: []string{"country/USA", "country/CAN", "country/MEX"},
			},
			{
				Variable:   models.Variable{DCID: "UnemploymentRate_Person", Name: "Unemployment rate", Description: "Share of the labor force without work"},
				PlaceDCIDs: []string{"geoId/06", "geoId/48", "geoId/12", "geoId/36"},
			},
			{
				Variable:   models.Variable{DCID: "Percent_Person_WithHealthInsurance", Name: "Health insurance coverage", Description: "Share of people with health insurance", Topics: []string{"dc/topic/Health"}},
				PlaceDCIDs: []string{"geoId/06"},
			},
			{
				Variable:   models.Variable{DCID: "Amount_Trade_Export_GDP", Name: "Exports between countries", Description: "Bilateral trade flows as GDP share", Bilateral: true},
				PlaceDCIDs: []string{"country/USA", "country/CAN", "country/MEX"},
			},
		},
		Topics: []models.Topic{
			{DCID: "dc/topic/Health", Name: "Health", Description: "Health outcomes and insurance", MemberVariables: []string{"Percent_Person_WithHealthInsurance"}},
			{DCID: "dc/topic/Demographics", Name: "Demographics", Description: "Population structure", MemberVariables: []string{"Count_Person"}},
		},
		SeriesData: map[string][]models.Observation{
			SeriesKey("Count_Person", "country/USA"): {
				{Date: "2018", Value: 326838199},
				{Date: "2019", Value: 328329953},
				{Date: "2020", Value: 331577720},
				{Date: "2021", Value: 332048977},
				{Date: "2022", Value: 333271411},
				{Date: "2023", Value: 334914895},
			},
			SeriesKey("Count_Person", "country/CAN"): {
				{Date: "2019", Value: 37601230},
				{Date: "2021", Value: 38226498},
			},
			SeriesKey("Median_Age_Person", "country/USA"): {
				{Date: "2017-07", Value: 38.0},
				{Date: "2019-01", Value: 38.4},
				{Date: "2019-07", Value: 38.5},
				{Date: "2022-07", Value: 38.9},
			},
		},
	}
}
