package report

import (
	"io"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"plancost/core/costing"
	"plancost/core/plan"
	"plancost/core/rules"
	"plancost/internal/errors"
)

// YAML wire types render money as strings so the document is stable
// across YAML implementations. Null monthly cost stays a YAML null.
type yamlReport struct {
	RunID           string               `yaml:"run_id"`
	GeneratedAt     time.Time            `yaml:"generated_at"`
	Currency        string               `yaml:"currency"`
	Total           string               `yaml:"total_monthly_cost"`
	Estimates       []yamlEstimate       `yaml:"estimates"`
	Recommendations []yamlRecommendation `yaml:"recommendations,omitempty"`
}

type yamlEstimate struct {
	ResourceID  string          `yaml:"resource_id"`
	Kind        string          `yaml:"resource_kind"`
	Region      string          `yaml:"region"`
	MonthlyCost *string         `yaml:"monthly_cost"`
	Currency    string          `yaml:"currency"`
	Breakdown   []yamlComponent `yaml:"breakdown,omitempty"`
	Stale       bool            `yaml:"stale"`
	ErrorKind   string          `yaml:"error_kind,omitempty"`
}

type yamlComponent struct {
	Name string `yaml:"name"`
	Cost string `yaml:"cost"`
}

type yamlRecommendation struct {
	ResourceID     string `yaml:"resource_id"`
	Category       string `yaml:"category"`
	Action         string `yaml:"action"`
	CurrentCost    string `yaml:"current_cost"`
	SuggestedCost  string `yaml:"suggested_cost"`
	Savings        string `yaml:"savings"`
	SavingsPercent string `yaml:"savings_percentage"`
	Impact         string `yaml:"impact"`
	Complexity     string `yaml:"complexity"`
}

// yamlExporter renders the full report as a YAML document
type yamlExporter struct{}

func (yamlExporter) Format() Format { return FormatYAML }

func (yamlExporter) Export(w io.Writer, report *CostReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toYAMLReport(report)); err != nil {
		return errors.Internal("failed to encode report as YAML", err)
	}
	return enc.Close()
}

// ImportYAML reads a report previously exported as YAML
func ImportYAML(r io.Reader) (*CostReport, error) {
	var wire yamlReport
	if err := yaml.NewDecoder(r).Decode(&wire); err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to decode YAML report", err)
	}
	return fromYAMLReport(&wire)
}

func toYAMLReport(report *CostReport) *yamlReport {
	out := &yamlReport{
		RunID:       report.RunID,
		GeneratedAt: report.GeneratedAt,
		Currency:    report.Currency,
		Total:       report.Total.String(),
		Estimates:   make([]yamlEstimate, len(report.Estimates)),
	}
	for i, est := range report.Estimates {
		ye := yamlEstimate{
			ResourceID: est.ResourceID,
			Kind:       est.Kind.String(),
			Region:     est.Region,
			Currency:   est.Currency,
			Stale:      est.Stale,
			ErrorKind:  est.ErrorKind,
		}
		if est.MonthlyCost.Valid {
			s := est.MonthlyCost.Decimal.String()
			ye.MonthlyCost = &s
		}
		for _, comp := range est.Breakdown {
			ye.Breakdown = append(ye.Breakdown, yamlComponent{Name: comp.Name, Cost: comp.Cost.String()})
		}
		out.Estimates[i] = ye
	}
	for _, rec := range report.Recommendations {
		out.Recommendations = append(out.Recommendations, yamlRecommendation{
			ResourceID:     rec.ResourceID,
			Category:       string(rec.Category),
			Action:         rec.Action,
			CurrentCost:    rec.CurrentCost.String(),
			SuggestedCost:  rec.SuggestedCost.String(),
			Savings:        rec.Savings.String(),
			SavingsPercent: rec.SavingsPercent.String(),
			Impact:         string(rec.Impact),
			Complexity:     string(rec.Complexity),
		})
	}
	return out
}

func fromYAMLReport(wire *yamlReport) (*CostReport, error) {
	report := &CostReport{
		RunID:       wire.RunID,
		GeneratedAt: wire.GeneratedAt,
		Currency:    wire.Currency,
		Estimates:   make([]costing.CostEstimate, len(wire.Estimates)),
	}

	total, err := parseMoney(wire.Total, "total_monthly_cost")
	if err != nil {
		return nil, err
	}
	report.Total = total

	for i, ye := range wire.Estimates {
		est := costing.CostEstimate{
			ResourceID: ye.ResourceID,
			Kind:       plan.Kind(ye.Kind),
			Region:     ye.Region,
			Currency:   ye.Currency,
			Stale:      ye.Stale,
			ErrorKind:  ye.ErrorKind,
		}
		if ye.MonthlyCost != nil {
			cost, err := parseMoney(*ye.MonthlyCost, "monthly_cost")
			if err != nil {
				return nil, err
			}
			est.MonthlyCost = decimal.NewNullDecimal(cost)
		}
		for _, comp := range ye.Breakdown {
			cost, err := parseMoney(comp.Cost, "breakdown cost")
			if err != nil {
				return nil, err
			}
			est.Breakdown = append(est.Breakdown, costing.Component{Name: comp.Name, Cost: cost})
		}
		report.Estimates[i] = est
	}

	for _, yr := range wire.Recommendations {
		rec := rules.Recommendation{
			ResourceID: yr.ResourceID,
			Category:   rules.Category(yr.Category),
			Action:     yr.Action,
			Impact:     rules.Level(yr.Impact),
			Complexity: rules.Level(yr.Complexity),
		}
		fields := []struct {
			dst  *decimal.Decimal
			src  string
			name string
		}{
			{&rec.CurrentCost, yr.CurrentCost, "current_cost"},
			{&rec.SuggestedCost, yr.SuggestedCost, "suggested_cost"},
			{&rec.Savings, yr.Savings, "savings"},
			{&rec.SavingsPercent, yr.SavingsPercent, "savings_percentage"},
		}
		for _, f := range fields {
			v, err := parseMoney(f.src, f.name)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		report.Recommendations = append(report.Recommendations, rec)
	}
	return report, nil
}

func parseMoney(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(errors.TypeInternal, err, "invalid %s in YAML report", field)
	}
	return d, nil
}
