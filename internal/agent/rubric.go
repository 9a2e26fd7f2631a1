package agent

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
)

// Common errors for review score parsing.
var (
	// ErrMalformedScore indicates no quality score could be found in a review.
	ErrMalformedScore = errors.New("malformed review: no quality score found")
	// ErrScoreOutOfRange indicates a score outside 0-100.
	ErrScoreOutOfRange = errors.New("quality score out of range (must be 0-100)")
)

// Regular expressions for locating scores in review text.
var (
	// fencedPattern matches a fenced code block, optionally tagged json.
	fencedPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	// objectPattern matches a flat JSON object.
	objectPattern = regexp.MustCompile(`\{[^{}]*\}`)
	// qualityPattern matches "quality_score: 85" or "Quality Score = 85".
	qualityPattern = regexp.MustCompile(`(?i)quality[_\s]*score["']?\s*[:=]\s*(\d+(?:\.\d+)?)`)
	// outOfHundredPattern matches "85/100" or "85 / 100".
	outOfHundredPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*100\b`)
	// scorePattern matches "Score: 85".
	scorePattern = regexp.MustCompile(`(?i)\bscore\s*[:=]\s*(\d+(?:\.\d+)?)`)
)

// scoreKeys are the JSON fields accepted as the quality score.
var scoreKeys = []string{"quality_score", "qualityScore", "score"}

// ParseQualityScore extracts the 0-100 quality score from a review.
// It looks, in order, for:
//   - a JSON object (fenced or bare) with a quality_score field; the last one wins
//   - "quality_score: N"
//   - "N/100"
//   - "Score: N"
func ParseQualityScore(review string) (float64, error) {
	if v, ok := scoreFromJSON(review); ok {
		return checkRange(v)
	}

	for _, re := range []*regexp.Regexp{qualityPattern, outOfHundredPattern, scorePattern} {
		matches := re.FindAllStringSubmatch(review, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		v, err := strconv.ParseFloat(last[1], 64)
		if err != nil {
			return 0, ErrMalformedScore
		}
		return checkRange(v)
	}

	return 0, ErrMalformedScore
}

func scoreFromJSON(text string) (float64, bool) {
	var candidates []string
	for _, m := range fencedPattern.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, objectPattern.FindAllString(text, -1)...)

	// Later objects override earlier ones: reviews end with the verdict.
	for i := len(candidates) - 1; i >= 0; i-- {
		raw := candidates[i]
		if !gjson.Valid(raw) {
			continue
		}
		for _, key := range scoreKeys {
			r := gjson.Get(raw, key)
			if !r.Exists() {
				continue
			}
			switch r.Type {
			case gjson.Number:
				return r.Float(), true
			case gjson.String:
				if v, err := strconv.ParseFloat(r.Str, 64); err == nil {
					return v, true
				}
			}
		}
	}
	return 0, false
}

func checkRange(v float64) (float64, error) {
	if v < 0 || v > 100 {
		return 0, ErrScoreOutOfRange
	}
	return v, nil
}

// Passes returns true if score meets the pass threshold.
func Passes(score, threshold float64) bool {
	return score >= threshold
}
