package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"stakesim/internal/model"
)

var roundSeriesHeader = []string{
	"episode",
	"round",
	"alpha",
	"feedback",
	"terminal",
	"termination",
	"flips",
	"sum_of_balance",
	"sum_of_effective_balance",
	"honest_proportion",
}

// WriteRoundSeries writes one CSV row per emitted step.
func WriteRoundSeries(runDir string, rounds []model.RoundRecord) error {
	file, err := os.Create(filepath.Join(runDir, roundSeriesCSV))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(roundSeriesHeader); err != nil {
		return err
	}
	for _, r := range rounds {
		if err := writer.Write([]string{
			strconv.Itoa(r.Episode),
			strconv.Itoa(r.Round),
			formatFloat(r.Alpha),
			formatFloat(r.Feedback),
			strconv.FormatBool(r.Terminal),
			r.Termination,
			strconv.Itoa(r.Flips),
			formatFloat(r.SumOfBalance),
			formatFloat(r.SumOfEffectiveBalance),
			formatFloat(r.HonestProportion),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadRoundSeries(baseDir, runID string) ([]model.RoundRecord, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, roundSeriesCSV))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.RoundRecord{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != len(roundSeriesHeader) {
		return nil, false, fmt.Errorf("round series header must have %d columns, got %d", len(roundSeriesHeader), len(header))
	}

	rounds := make([]model.RoundRecord, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		round, err := parseRoundRow(record)
		if err != nil {
			return nil, false, err
		}
		rounds = append(rounds, round)
	}
	return rounds, true, nil
}

func parseRoundRow(record []string) (model.RoundRecord, error) {
	var (
		r   model.RoundRecord
		err error
	)
	if r.Episode, err = strconv.Atoi(record[0]); err != nil {
		return r, fmt.Errorf("episode: %w", err)
	}
	if r.Round, err = strconv.Atoi(record[1]); err != nil {
		return r, fmt.Errorf("round: %w", err)
	}
	if r.Alpha, err = strconv.ParseFloat(record[2], 64); err != nil {
		return r, fmt.Errorf("alpha: %w", err)
	}
	if r.Feedback, err = strconv.ParseFloat(record[3], 64); err != nil {
		return r, fmt.Errorf("feedback: %w", err)
	}
	if r.Terminal, err = strconv.ParseBool(record[4]); err != nil {
		return r, fmt.Errorf("terminal: %w", err)
	}
	r.Termination = record[5]
	if r.Flips, err = strconv.Atoi(record[6]); err != nil {
		return r, fmt.Errorf("flips: %w", err)
	}
	if r.SumOfBalance, err = strconv.ParseFloat(record[7], 64); err != nil {
		return r, fmt.Errorf("sum_of_balance: %w", err)
	}
	if r.SumOfEffectiveBalance, err = strconv.ParseFloat(record[8], 64); err != nil {
		return r, fmt.Errorf("sum_of_effective_balance: %w", err)
	}
	if r.HonestProportion, err = strconv.ParseFloat(record[9], 64); err != nil {
		return r, fmt.Errorf("honest_proportion: %w", err)
	}
	return r, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
