package scoring

import (
	"math"

	"github.com/shopspring/decimal"
)

// Item is the minimal view of an evaluation item needed for scoring.
// Keep this in sync with audit.EvaluationItem.ScoringItem.
type Item struct {
	Category          string
	Subcategory       string
	Weight            float64 // bobot within the subcategory
	SubcategoryWeight float64 // subcategory bobot within the category
	CategoryWeight    float64 // category bobot within 100

	AuditeeAnswer   string
	AuditeeScore    float64
	EvaluatorAnswer string
	EvaluatorScore  float64
	TeacherScore    float64
}

// Mode selects how items are aggregated.
type Mode string

const (
	// ModeWeighted uses the template weights (regular and group practice audits).
	ModeWeighted Mode = "weighted"
	// ModeEqualWeight gives every item 100/N (exam audits, which hold a random subset).
	ModeEqualWeight Mode = "equal_weight"
)

// ScoreOf returns the evaluator's score when the evaluator answered,
// otherwise the auditee's, otherwise 0. The result is clamped to [0,100].
func ScoreOf(it Item) float64 {
	switch {
	case it.EvaluatorAnswer != "":
		return clamp(it.EvaluatorScore)
	case it.AuditeeAnswer != "":
		return clamp(it.AuditeeScore)
	default:
		return 0
	}
}

// TeacherScoreOf returns the teacher's independent score.
func TeacherScoreOf(it Item) float64 { return clamp(it.TeacherScore) }

type SubcategoryScore struct {
	Name         string  `json:"name"`
	Weight       float64 `json:"weight"`
	Items        int     `json:"items"`
	Score        float64 `json:"score"`         // 0..100 within the subcategory
	Contribution float64 `json:"contribution"`  // share added to the category score
	TeacherScore float64 `json:"teacher_score"` // 0..100 within the subcategory
}

type CategoryScore struct {
	Name          string             `json:"name"`
	Weight        float64            `json:"weight"`
	Score         float64            `json:"score"`
	TeacherScore  float64            `json:"teacher_score"`
	Subcategories []SubcategoryScore `json:"subcategories"`
}

type Scorecard struct {
	Mode             Mode            `json:"mode"`
	Categories       []CategoryScore `json:"categories"`
	Total            float64         `json:"total"`
	TeacherTotal     float64         `json:"teacher_total"`
	Predicate        Predicate       `json:"predicate"`
	TeacherPredicate Predicate       `json:"teacher_predicate"`
}

// Engine aggregates item scores. The zero value is ready to use.
type Engine struct {
	// Places is the number of decimals reported scores are rounded to; 0 means 2.
	Places int32
}

func (e Engine) places() int32 {
	if e.Places <= 0 {
		return 2
	}
	return e.Places
}

type group struct {
	name  string
	items []Item
}

type categoryGroup struct {
	group
	subs []*group
}

// groupItems buckets items by category then subcategory, keeping the order
// in which each name first appears.
func groupItems(items []Item) []*categoryGroup {
	var cats []*categoryGroup
	catIdx := map[string]*categoryGroup{}
	subIdx := map[[2]string]*group{}
	for _, it := range items {
		c, ok := catIdx[it.Category]
		if !ok {
			c = &categoryGroup{group: group{name: it.Category}}
			catIdx[it.Category] = c
			cats = append(cats, c)
		}
		c.items = append(c.items, it)
		k := [2]string{it.Category, it.Subcategory}
		s, ok := subIdx[k]
		if !ok {
			s = &group{name: it.Subcategory}
			subIdx[k] = s
			c.subs = append(c.subs, s)
		}
		s.items = append(s.items, it)
	}
	return cats
}

// Compute builds the scorecard for items in the given mode.
func (e Engine) Compute(items []Item, mode Mode) Scorecard {
	if mode == ModeEqualWeight {
		return e.computeEqual(items)
	}
	return e.computeWeighted(items)
}

func (e Engine) computeWeighted(items []Item) Scorecard {
	hundred := decimal.NewFromInt(100)
	sc := Scorecard{Mode: ModeWeighted, Categories: []CategoryScore{}}
	total, teacherTotal := decimal.Zero, decimal.Zero

	for _, c := range groupItems(items) {
		cs := CategoryScore{Name: c.name, Weight: c.items[0].CategoryWeight}
		catScore, catTeacher := decimal.Zero, decimal.Zero
		for _, s := range c.subs {
			sub := weightedMean(s.items, ScoreOf)
			subTeacher := weightedMean(s.items, TeacherScoreOf)
			subWeight := decimal.NewFromFloat(s.items[0].SubcategoryWeight)
			contribution := sub.Mul(subWeight).Div(hundred)

			catScore = catScore.Add(contribution)
			catTeacher = catTeacher.Add(subTeacher.Mul(subWeight).Div(hundred))
			cs.Subcategories = append(cs.Subcategories, SubcategoryScore{
				Name:         s.name,
				Weight:       s.items[0].SubcategoryWeight,
				Items:        len(s.items),
				Score:        e.round(sub),
				Contribution: e.round(contribution),
				TeacherScore: e.round(subTeacher),
			})
		}
		cs.Score = e.round(catScore)
		cs.TeacherScore = e.round(catTeacher)
		total = total.Add(catScore)
		teacherTotal = teacherTotal.Add(catTeacher)
		sc.Categories = append(sc.Categories, cs)
	}
	e.finish(&sc, total, teacherTotal)
	return sc
}

func (e Engine) computeEqual(items []Item) Scorecard {
	sc := Scorecard{Mode: ModeEqualWeight, Categories: []CategoryScore{}}
	if len(items) == 0 {
		e.finish(&sc, decimal.Zero, decimal.Zero)
		return sc
	}
	hundred := decimal.NewFromInt(100)
	equalWeight := hundred.Div(decimal.NewFromInt(int64(len(items))))
	total, teacherTotal := decimal.Zero, decimal.Zero

	for _, c := range groupItems(items) {
		cs := CategoryScore{
			Name:   c.name,
			Weight: e.round(equalWeight.Mul(decimal.NewFromInt(int64(len(c.items))))),
		}
		catScore, catTeacher := decimal.Zero, decimal.Zero
		for _, it := range c.items {
			catScore = catScore.Add(decimal.NewFromFloat(ScoreOf(it)).Mul(equalWeight).Div(hundred))
			catTeacher = catTeacher.Add(decimal.NewFromFloat(TeacherScoreOf(it)).Mul(equalWeight).Div(hundred))
		}
		for _, s := range c.subs {
			cs.Subcategories = append(cs.Subcategories, SubcategoryScore{
				Name:         s.name,
				Weight:       e.round(equalWeight.Mul(decimal.NewFromInt(int64(len(s.items))))),
				Items:        len(s.items),
				Score:        e.round(mean(s.items, ScoreOf)),
				TeacherScore: e.round(mean(s.items, TeacherScoreOf)),
			})
		}
		cs.Score = e.round(catScore)
		cs.TeacherScore = e.round(catTeacher)
		total = total.Add(catScore)
		teacherTotal = teacherTotal.Add(catTeacher)
		sc.Categories = append(sc.Categories, cs)
	}
	e.finish(&sc, total, teacherTotal)
	return sc
}

// gradePlaces only strips division noise (100/6 rounds up in the last digit)
// before a total is graded.
const gradePlaces = 8

// finish grades the unrounded totals; only the reported numbers are rounded
// to Places.
func (e Engine) finish(sc *Scorecard, total, teacherTotal decimal.Decimal) {
	sc.Total = e.round(total)
	sc.TeacherTotal = e.round(teacherTotal)
	sc.Predicate = PredicateFor(total.Round(gradePlaces).InexactFloat64())
	sc.TeacherPredicate = PredicateFor(teacherTotal.Round(gradePlaces).InexactFloat64())
}

func (e Engine) round(d decimal.Decimal) float64 {
	return d.Round(e.places()).InexactFloat64()
}

// weightedMean is Σ(score·bobot)/Σ(bobot), 0 for no weight.
func weightedMean(items []Item, score func(Item) float64) decimal.Decimal {
	num, den := decimal.Zero, decimal.Zero
	for _, it := range items {
		w := decimal.NewFromFloat(it.Weight)
		num = num.Add(decimal.NewFromFloat(score(it)).Mul(w))
		den = den.Add(w)
	}
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

func mean(items []Item, score func(Item) float64) decimal.Decimal {
	if len(items) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(score(it)))
	}
	return sum.Div(decimal.NewFromInt(int64(len(items))))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
