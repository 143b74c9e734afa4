package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/estimator/internal/export"
	"github.com/sells-group/estimator/internal/learning"
	"github.com/sells-group/estimator/internal/model"
)

var (
	learnAccount  string
	learnEstimate string
	learnEdits    string
	learnXLSX     string
	learnNotes    string
	learnDryRun   bool
)

// editFile is a contractor's edited line items in YAML.
type editFile struct {
	Notes     string     `yaml:"notes"`
	LineItems []editItem `yaml:"line_items"`
}

type editItem struct {
	Category    string  `yaml:"category"`
	Description string  `yaml:"description"`
	Quantity    float64 `yaml:"quantity"`
	Unit        string  `yaml:"unit"`
	Rate        float64 `yaml:"rate"`
	Confidence  string  `yaml:"confidence"`
	Notes       string  `yaml:"notes"`
}

func loadEdits(path string) (*editFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read edits %s", path)
	}
	var f editFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "parse edits %s", path)
	}
	return &f, nil
}

// items converts the edit file into line items. Unknown categories become
// Other and a missing confidence becomes medium.
func (f *editFile) items() ([]model.LineItem, error) {
	out := make([]model.LineItem, 0, len(f.LineItems))
	for i, e := range f.LineItems {
		cat, ok := model.ParseCategory(e.Category)
		if !ok {
			cat = model.CategoryOther
		}
		conf, ok := model.ParseConfidence(e.Confidence)
		if !ok {
			conf = model.ConfidenceMedium
		}
		li := model.LineItem{
			Category:    cat,
			Description: strings.TrimSpace(e.Description),
			Quantity:    e.Quantity,
			Unit:        e.Unit,
			Rate:        e.Rate,
			Confidence:  conf,
			Notes:       e.Notes,
		}
		if err := li.Validate(); err != nil {
			return nil, eris.Wrapf(err, "line_items[%d]", i)
		}
		li.Recalculate()
		out = append(out, li)
	}
	return out, nil
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Learn pricing memories from an edited estimate",
	Long:  "Diffs a stored estimate against edited line items from a YAML file or an edited .xlsx export, distills the changes into memories and appends them to the account.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if (learnEdits == "") == (learnXLSX == "") {
			return eris.New("exactly one of --edits or --xlsx is required")
		}

		var (
			edited []model.LineItem
			notes  = learnNotes
		)
		if learnEdits != "" {
			f, err := loadEdits(learnEdits)
			if err != nil {
				return err
			}
			if edited, err = f.items(); err != nil {
				return err
			}
			if notes == "" {
				notes = f.Notes
			}
		} else {
			data, err := os.ReadFile(learnXLSX)
			if err != nil {
				return eris.Wrapf(err, "read %s", learnXLSX)
			}
			if edited, err = export.ReadLineItems(data); err != nil {
				return err
			}
		}

		env, err := initApp(ctx, "learn")
		if err != nil {
			return err
		}
		defer env.Close()

		est, err := env.Store.GetEstimate(ctx, learnAccount, learnEstimate)
		if err != nil {
			return eris.Wrapf(err, "load estimate %s", learnEstimate)
		}

		out := cmd.OutOrStdout()
		changes := learning.Diff(est.LineItems, edited)
		for _, c := range changes {
			fmt.Fprintln(out, "  "+c)
		}

		memories, err := env.Learner.ExtractLearnings(ctx, est.LineItems, edited, notes)
		if err != nil {
			return err
		}
		for _, m := range memories {
			fmt.Fprintf(out, "[%s] %s\n", m.Type, m.Content)
		}

		if learnDryRun || len(memories) == 0 {
			zap.L().Info("no memories stored",
				zap.Bool("dry_run", learnDryRun),
				zap.Int("changes", len(changes)),
			)
			return nil
		}
		if err := env.Store.AppendMemories(ctx, learnAccount, memories, cfg.Pricing.MemoryCap); err != nil {
			return err
		}
		zap.L().Info("memories stored",
			zap.String("account_id", learnAccount),
			zap.Int("memories", len(memories)),
		)
		return nil
	},
}

func init() {
	learnCmd.Flags().StringVar(&learnAccount, "account", "", "account ID")
	learnCmd.Flags().StringVar(&learnEstimate, "estimate", "", "estimate ID")
	learnCmd.Flags().StringVar(&learnEdits, "edits", "", "YAML file of edited line items")
	learnCmd.Flags().StringVar(&learnXLSX, "xlsx", "", "edited estimate export (.xlsx)")
	learnCmd.Flags().StringVar(&learnNotes, "notes", "", "contractor notes")
	learnCmd.Flags().BoolVar(&learnDryRun, "dry-run", false, "print memories without storing them")
	_ = learnCmd.MarkFlagRequired("account")
	_ = learnCmd.MarkFlagRequired("estimate")
	rootCmd.AddCommand(learnCmd)
}
