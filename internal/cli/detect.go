package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hed1ad/aedetect/internal/config"
	"github.com/hed1ad/aedetect/internal/logging"
	"github.com/hed1ad/aedetect/pkg/detectors"
	"github.com/hed1ad/aedetect/pkg/detectors/ae"
	goio "github.com/hed1ad/aedetect/pkg/io"
	"github.com/hed1ad/aedetect/pkg/io/csv"
	"github.com/hed1ad/aedetect/pkg/io/pcap"
)

// Report is the result of one detect run.
type Report struct {
	Input     string        `json:"input" yaml:"input"`
	Length    int           `json:"length" yaml:"length"`
	RollLen   int           `json:"roll_len" yaml:"roll_len"`
	Ratio     float64       `json:"ratio" yaml:"ratio"`
	Anomalies []goio.Result `json:"anomalies" yaml:"anomalies"`
	Scores    []goio.Result `json:"scores,omitempty" yaml:"scores,omitempty"`
}

func newDetectCmd(a *app) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "detect --input <file> [flags]",
		Short: "Fit a detector on a series and print the anomalous samples",
		Long: `Read a univariate series from a CSV column or a pcap capture, fit the
autoencoder detector and print the floor(L*ratio) samples with the highest
anomaly score, least anomalous first.

Examples:

  aedetect detect --input load.csv --column value --roll-len 24
  aedetect detect --input trace.pcap --metric packet_rate --bucket 100ms
  aedetect detect --input load.csv --roll-len 0 --output json --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input == "" {
				return errors.New("--input is required")
			}

			cfg, err := config.Load(a.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(a.stderr, logLevel(cfg), cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			report, err := runDetect(input, cfg, logger)
			if err != nil {
				return err
			}
			return render(a.stdout, cfg.Output.Format, report)
		},
	}

	d := detectors.DefaultConfig()
	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "series file (CSV or pcap)")
	f.String("format", "", "input format: csv or pcap (default: from extension)")
	f.String("column", "", "CSV column name holding the series (default: first column)")
	f.Bool("header", true, "CSV file has a header row")
	f.String("metric", string(pcap.MetricPacketSize), "pcap series: packet_size, payload_size, inter_arrival_time, ip_ttl, packet_rate")
	f.Duration("bucket", time.Second, "bucket interval for the packet_rate metric")
	f.Int("roll-len", d.RollLen, "subsequence window length, 0 disables windowing")
	f.Float64("ratio", d.Ratio, "fraction of samples reported as anomalous")
	f.Float64("compress-rate", d.CompressRate, "autoencoder bottleneck as a fraction of input width")
	f.Int("batch-size", d.BatchSize, "training batch size")
	f.Int("epochs", d.Epochs, "training epochs")
	f.Int("verbose", d.Verbose, "log training progress when > 0")
	f.Float64("sub-scalef", d.SubScaleF, "weight of the subsequence error")
	f.Int64("seed", d.RandomSeed, "random seed")
	f.StringP("output", "o", "text", "output format: text, json or yaml")
	f.Bool("all", false, "include the score of every sample")

	return cmd
}

// logLevel lowers the configured level to info when training progress is
// requested, so epoch losses reach stderr.
func logLevel(cfg *config.Config) string {
	if cfg.Detector.Verbose <= 0 {
		return cfg.Log.Level
	}
	lvl, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil || lvl <= zapcore.InfoLevel {
		return cfg.Log.Level
	}
	return zapcore.InfoLevel.String()
}

func runDetect(input string, cfg *config.Config, logger *zap.Logger) (*Report, error) {
	series, err := readSeries(input, cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", input, err)
	}
	logger.Info("series loaded", zap.String("input", input), zap.Int("length", len(series)))

	det := ae.New(ae.WithConfig(cfg.Detector), ae.WithLogger(logger))
	if err := det.Fit(series); err != nil {
		return nil, err
	}

	scores, err := det.Scores()
	if err != nil {
		return nil, err
	}
	idx, err := det.AnomalyIndexes()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Input:     input,
		Length:    len(series),
		RollLen:   cfg.Detector.RollLen,
		Ratio:     cfg.Detector.Ratio,
		Anomalies: make([]goio.Result, 0, len(idx)),
	}
	for _, i := range idx {
		report.Anomalies = append(report.Anomalies, toResult(scores[i]))
	}
	if cfg.Output.All {
		report.Scores = make([]goio.Result, len(scores))
		for i, s := range scores {
			report.Scores[i] = toResult(s)
		}
	}

	logger.Info("detection complete", zap.Int("anomalies", len(idx)))
	return report, nil
}

func toResult(s detectors.Score) goio.Result {
	return goio.Result{Index: s.Index, Value: s.Value, Score: s.Score, IsAnomaly: s.IsAnomaly}
}

func readSeries(path string, in config.InputConfig) ([]float64, error) {
	format := in.Format
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pcap", ".cap":
			format = "pcap"
		default:
			format = "csv"
		}
	}

	var (
		r   goio.SeriesReader
		err error
	)
	switch format {
	case "pcap":
		r, err = pcap.NewFileReader(path,
			pcap.WithMetric(pcap.Metric(in.Metric)),
			pcap.WithBucket(in.Bucket),
		)
	default:
		opts := []csv.Option{csv.WithHeader(in.Header)}
		if in.Column != "" {
			opts = append(opts, csv.WithColumn(in.Column))
		}
		r, err = csv.NewReader(path, opts...)
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.ReadSeries()
}
