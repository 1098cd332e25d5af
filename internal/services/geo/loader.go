package geo

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

//go:embed data/countries.json
var defaultCountries []byte

//go:embed data/coastal.json
var defaultCoastal []byte

// Default builds the graph from the embedded world dataset
func Default() (*Graph, error) {
	return parse(defaultCountries, defaultCoastal)
}

// Load builds a graph from JSON readers: an array of {name, neighbours}
// records and an array of coastal country names
func Load(countries, coastal io.Reader) (*Graph, error) {
	countriesData, err := io.ReadAll(countries)
	if err != nil {
		return nil, fmt.Errorf("read countries: %w", err)
	}
	coastalData, err := io.ReadAll(coastal)
	if err != nil {
		return nil, fmt.Errorf("read coastal set: %w", err)
	}
	return parse(countriesData, coastalData)
}

// LoadFiles builds a graph from dataset files on disk
func LoadFiles(countriesPath, coastalPath string) (*Graph, error) {
	countries, err := os.Open(countriesPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = countries.Close() }()

	coastal, err := os.Open(coastalPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = coastal.Close() }()

	return Load(countries, coastal)
}

func parse(countriesData, coastalData []byte) (*Graph, error) {
	var countries []Country
	if err := json.Unmarshal(countriesData, &countries); err != nil {
		return nil, fmt.Errorf("parse countries: %w", err)
	}
	var coastal []string
	if err := json.Unmarshal(coastalData, &coastal); err != nil {
		return nil, fmt.Errorf("parse coastal set: %w", err)
	}
	return New(countries, coastal)
}
