package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Reporter generates evaluation reports
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	// Create output directory
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}

	if err := r.generatePredictionLog(); err != nil {
		return err
	}

	return r.generateJSONReport()
}

func (r *Reporter) fileName(suffix string) string {
	return filepath.Join(r.outputPath, r.results.Pipeline+"_"+suffix)
}

// generateSummary generates a human-readable summary
func (r *Reporter) generateSummary() error {
	summaryPath := r.fileName("evaluation_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) writeSummary(w io.Writer) {
	res := r.results

	fmt.Fprintf(w, "EVALUATION SUMMARY: %s\n", res.Pipeline)
	fmt.Fprintf(w, "==========================\n\n")

	fmt.Fprintf(w, "Samples: %d\n", res.Total)
	fmt.Fprintf(w, "Scored: %d\n", res.Scored)
	fmt.Fprintf(w, "Failures: %d\n", res.Failures)
	fmt.Fprintf(w, "Duration: %s\n\n", res.EndTime.Sub(res.StartTime))

	fmt.Fprintf(w, "ACCURACY\n")
	fmt.Fprintf(w, "--------\n")
	fmt.Fprintf(w, "Correct: %d / %d\n", res.Correct, res.Scored)
	fmt.Fprintf(w, "Accuracy: %.2f%%\n", res.Accuracy*100)
	fmt.Fprintf(w, "Mean Confidence: %.4f\n", res.MeanConfidence)

	names := res.ClassNames()
	if len(names) == 0 {
		return
	}

	fmt.Fprintf(w, "\nPER CLASS\n")
	fmt.Fprintf(w, "---------\n")
	for _, name := range names {
		cs := res.Classes[name]
		fmt.Fprintf(w, "%s: support %d, precision %.2f%%, recall %.2f%%\n",
			name, cs.Support, cs.Precision*100, cs.Recall*100)
	}

	fmt.Fprintf(w, "\nCONFUSION (actual -> predicted)\n")
	fmt.Fprintf(w, "-------------------------------\n")
	for _, actual := range names {
		row, ok := res.Confusion[actual]
		if !ok {
			continue
		}
		for _, predicted := range names {
			if n := row[predicted]; n > 0 {
				fmt.Fprintf(w, "%s -> %s: %d\n", actual, predicted, n)
			}
		}
	}
}

// generatePredictionLog generates a CSV log of every sample
func (r *Reporter) generatePredictionLog() error {
	csvPath := r.fileName("predictions.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create prediction log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"Row", "Label", "Predicted", "Confidence", "Correct", "Error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, o := range r.results.Outcomes {
		record := []string{
			strconv.Itoa(o.Row),
			o.Label,
			o.Predicted,
			fmt.Sprintf("%.4f", o.Confidence),
			strconv.FormatBool(o.Correct),
			o.Error,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write prediction log: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Prediction log generated")
	return nil
}

// generateJSONReport generates a JSON report with all data
func (r *Reporter) generateJSONReport() error {
	jsonPath := r.fileName("evaluation.json")

	report := map[string]interface{}{
		"summary":      r.results,
		"outcomes":     r.results.Outcomes,
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary writes the summary to stdout.
func (r *Reporter) PrintSummary() {
	r.writeSummary(os.Stdout)
}
