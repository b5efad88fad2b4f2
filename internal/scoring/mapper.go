package scoring

import "strings"

// answerScores maps a letter answer to its numeric score.
// A–E grade the degree of fulfilment, Y/T are yes/no criteria.
var answerScores = map[string]float64{
	"A": 100,
	"B": 75,
	"C": 50,
	"D": 25,
	"E": 0,
	"Y": 100,
	"T": 0,
}

// NormalizeAnswer trims and upper-cases a letter answer.
func NormalizeAnswer(answer string) string {
	return strings.ToUpper(strings.TrimSpace(answer))
}

// MapAnswer returns the score for a letter answer. ok is false for an
// empty or unknown answer, in which case the score is 0.
func MapAnswer(answer string) (score float64, ok bool) {
	score, ok = answerScores[NormalizeAnswer(answer)]
	return score, ok
}

// Answers lists the accepted letters in display order.
func Answers() []string {
	return []string{"A", "B", "C", "D", "E", "Y", "T"}
}
