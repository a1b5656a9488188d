// Package evaluate scores a prediction pipeline against a labelled dataset
// and writes accuracy reports.
package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultLabelColumn is the CSV column holding the expected class.
const DefaultLabelColumn = "label"

// Sample is one labelled feature vector.
type Sample struct {
	Row      int       `json:"row"`
	Features []float64 `json:"features"`
	Label    string    `json:"label"`
}

// DataLoader reads labelled samples from CSV or JSON-lines files.
type DataLoader struct {
	samples []Sample
	skipped int
}

// NewDataLoader creates a new data loader
func NewDataLoader() *DataLoader {
	return &DataLoader{samples: make([]Sample, 0)}
}

// LoadFromCSV loads a CSV file whose header names a label column; every other
// column is a feature, in file order. Rows that do not parse are skipped and
// counted.
func (dl *DataLoader) LoadFromCSV(filePath, labelColumn string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	if labelColumn == "" {
		labelColumn = DefaultLabelColumn
	}

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	// Read header
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	labelIdx := -1
	for i, col := range header {
		if strings.TrimSpace(col) == labelColumn {
			labelIdx = i
			break
		}
	}
	if labelIdx < 0 {
		return fmt.Errorf("CSV header has no %q column", labelColumn)
	}

	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			log.Warn().Err(err).Int("row", row).Msg("skipping unreadable CSV row")
			dl.skipped++
			continue
		}

		sample, err := parseRecord(record, labelIdx)
		if err != nil {
			log.Warn().Err(err).Int("row", row).Msg("skipping malformed CSV row")
			dl.skipped++
			continue
		}
		sample.Row = row
		dl.samples = append(dl.samples, sample)
	}

	log.Info().
		Str("file", filePath).
		Int("samples", len(dl.samples)).
		Int("skipped", dl.skipped).
		Msg("CSV data loaded successfully")

	return nil
}

func parseRecord(record []string, labelIdx int) (Sample, error) {
	var s Sample
	s.Features = make([]float64, 0, len(record)-1)
	for i, field := range record {
		field = strings.TrimSpace(field)
		if i == labelIdx {
			s.Label = normalizeLabel(field)
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Sample{}, fmt.Errorf("column %d: %w", i, err)
		}
		s.Features = append(s.Features, v)
	}
	if s.Label == "" {
		return Sample{}, errors.New("empty label")
	}
	return s, nil
}

// LoadFromJSON loads JSON lines of the form {"features": [...], "label": ...}.
// Numeric labels are accepted.
func (dl *DataLoader) LoadFromJSON(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	row := 0
	for decoder.More() {
		row++
		var record struct {
			Features []float64      `json:"features"`
			Label    json.RawMessage `json:"label"`
		}
		if err := decoder.Decode(&record); err != nil {
			return fmt.Errorf("failed to decode record %d: %w", row, err)
		}

		label, err := jsonLabel(record.Label)
		if err != nil || record.Features == nil {
			dl.skipped++
			continue
		}
		dl.samples = append(dl.samples, Sample{Row: row, Features: record.Features, Label: label})
	}

	log.Info().
		Str("file", filePath).
		Int("samples", len(dl.samples)).
		Int("skipped", dl.skipped).
		Msg("JSON data loaded successfully")

	return nil
}

func jsonLabel(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("missing label")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return normalizeLabel(s), nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported label %s", string(raw))
}

// normalizeLabel writes numeric labels the way class labels are loaded, so
// "1.0" in a dataset matches class "1".
func normalizeLabel(s string) string {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}

// Samples returns the loaded samples.
func (dl *DataLoader) Samples() []Sample {
	return dl.samples
}

// Skipped returns the number of rows that could not be parsed.
func (dl *DataLoader) Skipped() int {
	return dl.skipped
}

// GetDataCount returns the total number of samples
func (dl *DataLoader) GetDataCount() int {
	return len(dl.samples)
}
