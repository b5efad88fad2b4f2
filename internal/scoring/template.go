package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Template is the fixed weighting every new audit is created from.
type Template struct {
	Categories []TemplateCategory `json:"categories"`
}

type TemplateCategory struct {
	Name          string                `json:"name"`
	Weight        float64               `json:"weight"` // share of the 100-point total
	Subcategories []TemplateSubcategory `json:"subcategories"`
}

type TemplateSubcategory struct {
	Name     string              `json:"name"`
	Weight   float64             `json:"weight"` // share of the category weight
	Criteria []TemplateCriterion `json:"criteria"`
}

type TemplateCriterion struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"` // criteria of one subcategory sum to 100
}

// Validate checks the weight invariants: categories sum to 100, each
// category's subcategories sum to the category weight, each subcategory's
// criteria sum to 100.
func (t Template) Validate() error {
	hundred := decimal.NewFromInt(100)
	total := decimal.Zero
	for _, c := range t.Categories {
		total = total.Add(decimal.NewFromFloat(c.Weight))
		subs := decimal.Zero
		for _, s := range c.Subcategories {
			subs = subs.Add(decimal.NewFromFloat(s.Weight))
			crit := decimal.Zero
			for _, k := range s.Criteria {
				crit = crit.Add(decimal.NewFromFloat(k.Weight))
			}
			if !crit.Equal(hundred) {
				return fmt.Errorf("subcategory %q: criteria weights sum to %s, want 100", s.Name, crit)
			}
		}
		if !subs.Equal(decimal.NewFromFloat(c.Weight)) {
			return fmt.Errorf("category %q: subcategory weights sum to %s, want %v", c.Name, subs, c.Weight)
		}
	}
	if !total.Equal(hundred) {
		return fmt.Errorf("category weights sum to %s, want 100", total)
	}
	return nil
}

// Size is the number of criteria in the template.
func (t Template) Size() int {
	n := 0
	for _, c := range t.Categories {
		for _, s := range c.Subcategories {
			n += len(s.Criteria)
		}
	}
	return n
}

// DefaultTemplate returns the performance accountability template:
// four components, each split into existence (20%), quality (30%) and
// utilisation (50%) of its weight.
func DefaultTemplate() Template {
	return Template{Categories: []TemplateCategory{
		{
			Name: "Performance Planning", Weight: 30,
			Subcategories: []TemplateSubcategory{
				{Name: "Existence", Weight: 6, Criteria: []TemplateCriterion{
					{Text: "A strategic plan with measurable objectives has been issued", Weight: 30},
					{Text: "An annual performance plan has been issued", Weight: 30},
					{Text: "Performance agreements have been signed at every echelon", Weight: 40},
				}},
				{Name: "Quality", Weight: 9, Criteria: []TemplateCriterion{
					{Text: "Objectives are outcome oriented and measurable", Weight: 25},
					{Text: "Indicators meet SMART criteria", Weight: 25},
					{Text: "Targets are ambitious and consistent across planning documents", Weight: 25},
					{Text: "Programmes and activities are aligned with the objectives", Weight: 25},
				}},
				{Name: "Utilisation", Weight: 15, Criteria: []TemplateCriterion{
					{Text: "Plans are used as the reference for budgeting", Weight: 30},
					{Text: "Performance agreements are used to steer activities", Weight: 30},
					{Text: "Plans are revised when the operating context changes", Weight: 20},
					{Text: "Cascaded targets are used for individual appraisal", Weight: 20},
				}},
			},
		},
		{
			Name: "Performance Measurement", Weight: 30,
			Subcategories: []TemplateSubcategory{
				{Name: "Existence", Weight: 6, Criteria: []TemplateCriterion{
					{Text: "Key performance indicators have been defined", Weight: 50},
					{Text: "A data collection mechanism is documented", Weight: 50},
				}},
				{Name: "Quality", Weight: 9, Criteria: []TemplateCriterion{
					{Text: "Measurement is performed periodically", Weight: 30},
					{Text: "Performance data is reliable and verifiable", Weight: 40},
					{Text: "Measurement is supported by an information system", Weight: 30},
				}},
				{Name: "Utilisation", Weight: 15, Criteria: []TemplateCriterion{
					{Text: "Measurement results are used to adjust activities", Weight: 40},
					{Text: "Measurement results inform rewards and sanctions", Weight: 30},
					{Text: "Measurement results are used to refine indicators", Weight: 30},
				}},
			},
		},
		{
			Name: "Performance Reporting", Weight: 15,
			Subcategories: []TemplateSubcategory{
				{Name: "Existence", Weight: 3, Criteria: []TemplateCriterion{
					{Text: "An annual performance report has been prepared", Weight: 50},
					{Text: "The report was submitted on time", Weight: 50},
				}},
				{Name: "Quality", Weight: 4.5, Criteria: []TemplateCriterion{
					{Text: "The report compares achievements against targets", Weight: 40},
					{Text: "The report analyses causes of success and failure", Weight: 30},
					{Text: "The report presents efficiency of resource use", Weight: 30},
				}},
				{Name: "Utilisation", Weight: 7.5, Criteria: []TemplateCriterion{
					{Text: "Report findings are followed up in the next plan", Weight: 50},
					{Text: "The report is published to stakeholders", Weight: 50},
				}},
			},
		},
		{
			Name: "Internal Accountability Evaluation", Weight: 25,
			Subcategories: []TemplateSubcategory{
				{Name: "Existence", Weight: 5, Criteria: []TemplateCriterion{
					{Text: "Internal evaluation is carried out for every unit", Weight: 50},
					{Text: "Evaluation guidelines have been issued", Weight: 50},
				}},
				{Name: "Quality", Weight: 7.5, Criteria: []TemplateCriterion{
					{Text: "Evaluators are competent and independent", Weight: 30},
					{Text: "Evaluation covers planning, measurement and reporting", Weight: 40},
					{Text: "Recommendations are specific and actionable", Weight: 30},
				}},
				{Name: "Utilisation", Weight: 12.5, Criteria: []TemplateCriterion{
					{Text: "Recommendations are followed up by action plans", Weight: 50},
					{Text: "Evaluation results drive measurable improvement", Weight: 50},
				}},
			},
		},
	}}
}
