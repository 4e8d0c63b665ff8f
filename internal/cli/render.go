package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

func render(w io.Writer, format string, r *Report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderText(w, r)
	}
}

func renderText(w io.Writer, r *Report) error {
	fmt.Fprintf(w, "input: %s (%d samples, roll_len=%d, ratio=%g)\n", r.Input, r.Length, r.RollLen, r.Ratio)
	fmt.Fprintf(w, "anomalies: %d\n\n", len(r.Anomalies))

	rows := r.Anomalies
	if len(r.Scores) > 0 {
		rows = r.Scores
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tVALUE\tSCORE\tANOMALY")
	for _, res := range rows {
		mark := ""
		if res.IsAnomaly {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d\t%g\t%.4f\t%s\n", res.Index, res.Value, res.Score, mark)
	}
	return tw.Flush()
}
