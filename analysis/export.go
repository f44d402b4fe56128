package analysis

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/evergreen-ci/pail"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/model"
)

// csvHeader is the stable column order consumers of exported result
// files depend on.
var csvHeader = []string{
	"config_id",
	"scenario_name",
	"repetition",
	"timestamp",
	"stt_latency_ms",
	"llm_ttfb_ms",
	"llm_completion_ms",
	"tts_ttfb_ms",
	"tts_completion_ms",
	"e2e_latency_ms",
	"network_profile",
	"is_success",
	"errors",
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}

// WriteCSV renders the results as CSV in the stable column order.
// Multiple errors on one result are joined with semicolons.
func WriteCSV(w io.Writer, results []model.TestResult) error {
	out := csv.NewWriter(w)
	if err := out.Write(csvHeader); err != nil {
		return errors.Wrap(err, "problem writing csv header")
	}

	for _, result := range results {
		sttLatency := ""
		if result.STTLatencyMS != nil {
			sttLatency = formatFloat(*result.STTLatencyMS)
		}
		record := []string{
			result.ConfigID,
			result.ScenarioName,
			strconv.Itoa(result.Repetition),
			result.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
			sttLatency,
			formatFloat(result.LLMTTFBMS),
			formatFloat(result.LLMCompletionMS),
			formatFloat(result.TTSTTFBMS),
			formatFloat(result.TTSCompletionMS),
			formatFloat(result.E2ELatencyMS),
			string(result.Network),
			strconv.FormatBool(result.IsSuccess()),
			strings.Join(result.Errors, ";"),
		}
		if err := out.Write(record); err != nil {
			return errors.Wrapf(err, "problem writing result '%s'", result.ID)
		}
	}

	out.Flush()
	return errors.Wrap(out.Error(), "problem flushing csv")
}

// WriteJSON renders the run, including its results, as indented JSON.
func WriteJSON(w io.Writer, run *model.TestRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Wrap(err, "problem marshalling run")
	}
	_, err = w.Write(data)
	return errors.Wrap(err, "problem writing run")
}

// ArchiveRun writes the run's JSON document and CSV results into the
// export bucket under a per-run prefix and returns the keys written.
func ArchiveRun(ctx context.Context, bucketPath, prefix string, run *model.TestRun) ([]string, error) {
	bucket, err := pail.NewLocalBucket(pail.LocalOptions{
		Path:   bucketPath,
		Prefix: prefix,
	})
	if err != nil {
		return nil, errors.Wrap(err, "problem constructing export bucket")
	}

	jsonBuf := &bytes.Buffer{}
	if err = WriteJSON(jsonBuf, run); err != nil {
		return nil, errors.WithStack(err)
	}
	csvBuf := &bytes.Buffer{}
	if err = WriteCSV(csvBuf, run.Results); err != nil {
		return nil, errors.WithStack(err)
	}

	keys := []string{
		fmt.Sprintf("%s/run.json", run.ID),
		fmt.Sprintf("%s/results.csv", run.ID),
	}
	if err = bucket.Put(ctx, keys[0], jsonBuf); err != nil {
		return nil, errors.Wrapf(err, "problem uploading '%s'", keys[0])
	}
	if err = bucket.Put(ctx, keys[1], csvBuf); err != nil {
		return nil, errors.Wrapf(err, "problem uploading '%s'", keys[1])
	}
	return keys, nil
}
