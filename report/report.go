// Package report renders campaigns, campaign lists and dry-run plans for operators.
//
// Text output is aligned with text/tabwriter; JSON output is indented and stable so
// it can be diffed between runs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	migrator "github.com/getpup/ledger-migrator"
)

// Format is an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("invalid format %q: must be one of text, json", s)
	}
}

const timeLayout = time.RFC3339

// CampaignReport is the JSON shape of a finished campaign.
type CampaignReport struct {
	Campaign migrator.CampaignInfo `json:"campaign"`
	Summary  migrator.Summary      `json:"summary"`
	Outcomes []migrator.Outcome    `json:"outcomes"`
	Failed   []FailedRecord        `json:"failed"`
}

// FailedRecord names a failed record and why it failed.
type FailedRecord struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// NewCampaignReport collects the report of c.
func NewCampaignReport(c *migrator.Campaign) CampaignReport {
	r := CampaignReport{
		Campaign: c.Info(),
		Summary:  c.Summary(),
		Outcomes: c.Outcomes(),
		Failed:   []FailedRecord{},
	}
	for _, o := range c.Failed() {
		r.Failed = append(r.Failed, FailedRecord{RecordID: o.RecordID, Reason: o.Reason})
	}
	return r
}

// WriteCampaign writes every outcome of c followed by the failed records and their reasons.
func WriteCampaign(w io.Writer, format Format, c *migrator.Campaign) error {
	r := NewCampaignReport(c)
	if format == FormatJSON {
		return writeJSON(w, r)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeHeader(tw, r.Campaign)
	fmt.Fprintf(tw, "summary\ttotal=%d migrated=%d removed=%d skipped=%d failed=%d\n",
		r.Summary.Total, r.Summary.Migrated, r.Summary.Removed, r.Summary.Skipped, r.Summary.Failed)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Outcomes) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RECORD\tOUTCOME\tNEW ADDRESS\tATTEMPTS\tRECEIPT")
		for _, o := range r.Outcomes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", o.RecordID, o.Kind, addressOrDash(o.NewAddress), o.Attempts, orDash(o.Receipt))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Failed) > 0 {
		fmt.Fprintf(w, "\nfailed records (%d):\n", len(r.Failed))
		for _, f := range r.Failed {
			fmt.Fprintf(w, "  %s: %s\n", f.RecordID, f.Reason)
		}
	}
	return nil
}

// WriteCampaigns lists campaign headers, newest first as given.
func WriteCampaigns(w io.Writer, format Format, campaigns []migrator.CampaignInfo) error {
	if format == FormatJSON {
		if campaigns == nil {
			campaigns = []migrator.CampaignInfo{}
		}
		return writeJSON(w, campaigns)
	}
	if len(campaigns) == 0 {
		_, err := fmt.Fprintln(w, "no campaigns")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSOURCE\tTARGET\tSTATE\tSTARTED\tFINISHED")
	for _, c := range campaigns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Kind, c.SourceGeneration, orDash(string(c.TargetGeneration)), c.State,
			formatTime(c.StartedAt), formatTime(c.FinishedAt))
	}
	return tw.Flush()
}

// PlanReport is the JSON shape of a dry run.
type PlanReport struct {
	Kind   migrator.CampaignKind       `json:"kind"`
	Source migrator.NamespaceTag       `json:"source_generation"`
	Target migrator.NamespaceTag       `json:"target_generation,omitempty"`
	Counts map[migrator.PlanAction]int `json:"counts"`
	Steps  []migrator.PlannedStep      `json:"steps"`
}

// WritePlan writes the records a campaign would touch without running it.
func WritePlan(w io.Writer, format Format, kind migrator.CampaignKind, source, target migrator.NamespaceTag, steps []migrator.PlannedStep) error {
	r := PlanReport{
		Kind:   kind,
		Source: source,
		Target: target,
		Counts: make(map[migrator.PlanAction]int),
		Steps:  steps,
	}
	if r.Steps == nil {
		r.Steps = []migrator.PlannedStep{}
	}
	for _, s := range steps {
		r.Counts[s.Action]++
	}
	if format == FormatJSON {
		return writeJSON(w, r)
	}

	fmt.Fprintf(w, "dry run: %s %s", kind, source)
	if target != "" {
		fmt.Fprintf(w, " -> %s", target)
	}
	fmt.Fprintf(w, " (%d records, nothing submitted)\n", len(steps))
	if len(steps) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tACTION\tSOURCE\tTARGET\tREASON")
	for _, s := range steps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.RecordID, s.Action, s.Source, addressOrDash(s.Target), orDash(s.Reason))
	}
	return tw.Flush()
}

func writeHeader(w io.Writer, info migrator.CampaignInfo) {
	fmt.Fprintf(w, "campaign\t%s\n", info.ID)
	fmt.Fprintf(w, "kind\t%s\n", info.Kind)
	if info.TargetGeneration != "" {
		fmt.Fprintf(w, "generations\t%s -> %s\n", info.SourceGeneration, info.TargetGeneration)
	} else {
		fmt.Fprintf(w, "generation\t%s\n", info.SourceGeneration)
	}
	fmt.Fprintf(w, "state\t%s\n", info.State)
	fmt.Fprintf(w, "started\t%s\n", formatTime(info.StartedAt))
	fmt.Fprintf(w, "finished\t%s\n", formatTime(info.FinishedAt))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func addressOrDash(a migrator.Address) string {
	if a.IsZero() {
		return "-"
	}
	return a.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
