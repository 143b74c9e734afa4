package main

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/estimator/internal/export"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/orchestrator"
	"github.com/sells-group/estimator/internal/store"
)

var (
	chatFile    string
	chatAccount string
	chatMessage string
	chatXLSX    string
)

// chatScenario is one conversation turn described in YAML. An inline
// profile lets a turn run before the account is onboarded.
type chatScenario struct {
	AccountID  string           `yaml:"account_id"`
	Tier       string           `yaml:"tier"`
	EstimateID string           `yaml:"estimate_id"`
	Profile    *scenarioProfile `yaml:"profile"`
	History    []scenarioTurn   `yaml:"history"`
	Message    string           `yaml:"message"`
	Images     []string         `yaml:"images"`
}

type scenarioTurn struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

type scenarioProfile struct {
	CompanyName        string             `yaml:"company_name"`
	Trades             []string           `yaml:"trades"`
	City               string             `yaml:"city"`
	State              string             `yaml:"state"`
	Zip                string             `yaml:"zip"`
	LaborRates         map[string]float64 `yaml:"labor_rates"`
	MaterialMarkupPct  *float64           `yaml:"material_markup_pct"`
	OverheadProfitPct  *float64           `yaml:"overhead_profit_pct"`
	TaxRate            *float64           `yaml:"tax_rate"`
	CommonJobTypes     []string           `yaml:"common_job_types"`
	PreferredSuppliers []string           `yaml:"preferred_suppliers"`
	CrewSizes          map[string]int     `yaml:"typical_crew_sizes"`
	Notes              string             `yaml:"notes"`
}

func loadScenario(path string) (*chatScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read scenario %s", path)
	}
	var sc chatScenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, eris.Wrapf(err, "parse scenario %s", path)
	}
	for i, t := range sc.History {
		switch model.Role(t.Role) {
		case model.RoleUser, model.RoleAssistant:
		default:
			return nil, eris.Errorf("scenario %s: history[%d]: unknown role %q", path, i, t.Role)
		}
	}
	return &sc, nil
}

func (sc *chatScenario) history() []model.ConversationTurn {
	out := make([]model.ConversationTurn, 0, len(sc.History))
	for _, t := range sc.History {
		out = append(out, model.ConversationTurn{Role: model.Role(t.Role), Content: t.Content})
	}
	return out
}

func (p *scenarioProfile) toModel(accountID string) *model.CompanyProfile {
	out := &model.CompanyProfile{
		AccountID:          accountID,
		CompanyName:        p.CompanyName,
		Trades:             p.Trades,
		ServiceArea:        model.ServiceArea{City: p.City, State: p.State, Zip: p.Zip},
		LaborRates:         p.LaborRates,
		MaterialMarkupPct:  model.DefaultMaterialMarkupPct,
		OverheadProfitPct:  model.DefaultOverheadProfitPct,
		TaxRate:            model.DefaultTaxRate,
		CommonJobTypes:     p.CommonJobTypes,
		PreferredSuppliers: p.PreferredSuppliers,
		CrewSizes:          p.CrewSizes,
		Notes:              p.Notes,
	}
	if p.MaterialMarkupPct != nil {
		out.MaterialMarkupPct = *p.MaterialMarkupPct
	}
	if p.OverheadProfitPct != nil {
		out.OverheadProfitPct = *p.OverheadProfitPct
	}
	if p.TaxRate != nil {
		out.TaxRate = *p.TaxRate
	}
	return out
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run one estimate conversation turn from a YAML scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sc := &chatScenario{}
		if chatFile != "" {
			var err error
			if sc, err = loadScenario(chatFile); err != nil {
				return err
			}
		}
		if chatAccount != "" {
			sc.AccountID = chatAccount
		}
		if chatMessage != "" {
			sc.Message = chatMessage
		}
		if sc.AccountID == "" {
			sc.AccountID = "local"
		}
		tier, err := model.ParseTier(sc.Tier)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "chat")
		if err != nil {
			return err
		}
		defer env.Close()

		var profile *model.CompanyProfile
		if sc.Profile != nil {
			profile = sc.Profile.toModel(sc.AccountID)
		} else {
			profile, err = env.Store.GetProfile(ctx, sc.AccountID)
			if errors.Is(err, store.ErrNotFound) {
				return eris.Errorf("no company profile for account %q: add a profile section to the scenario", sc.AccountID)
			}
			if err != nil {
				return err
			}
		}

		history := sc.history()
		if sc.EstimateID != "" {
			est, err := env.Store.GetEstimate(ctx, sc.AccountID, sc.EstimateID)
			if err != nil {
				return eris.Wrapf(err, "load estimate %s", sc.EstimateID)
			}
			history = est.Conversation
		}

		memories, err := env.Store.RecentMemories(ctx, sc.AccountID, cfg.Pricing.MemoryLimit)
		if err != nil {
			return err
		}

		res, err := env.Orchestrator.HandleTurn(ctx, orchestrator.TurnRequest{
			AccountID: sc.AccountID,
			History:   history,
			Message:   sc.Message,
			Images:    sc.Images,
			Profile:   profile,
			Memories:  memories,
			Tier:      tier,
		})
		if err != nil {
			return err
		}

		if res.IsEstimate && chatXLSX != "" {
			if err := writeEstimateXLSX(chatXLSX, res.Estimate); err != nil {
				return err
			}
			zap.L().Info("estimate exported", zap.String("path", chatXLSX))
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func writeEstimateXLSX(path string, est *model.Estimate) error {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return eris.Errorf("export path %s must end in .xlsx", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := export.WriteXLSX(f, est); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

func init() {
	chatCmd.Flags().StringVarP(&chatFile, "file", "f", "", "YAML scenario file")
	chatCmd.Flags().StringVar(&chatAccount, "account", "", "account ID (overrides the scenario)")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "user message (overrides the scenario)")
	chatCmd.Flags().StringVar(&chatXLSX, "xlsx", "", "write a produced estimate to this .xlsx file")
	rootCmd.AddCommand(chatCmd)
}
