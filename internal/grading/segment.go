package grading

import (
	"regexp"
	"strconv"
	"strings"
)

// Segmentation maps expected question numbers to the answer spans found in
// extracted text, with a confidence describing how much structure was
// recognized.
type Segmentation struct {
	// Spans holds one entry per expected question; unmatched questions map
	// to the empty string.
	Spans map[int]string
	// Confidence is matched/expected markers in [0,1]. Zero means no
	// structure was found and the whole text was assigned to the first
	// question; every downstream result must then be flagged for review.
	Confidence float64
}

// Answer markers recognized at line starts: "1." / "1)" / "1:" / "Q1" /
// "Que 1" / "Question 1" / "Answer 1" / "Ans 1", with an optional trailing
// delimiter.
var (
	markerPattern = regexp.MustCompile(`(?i)^(?:q(?:ue(?:stion)?)?|ans(?:wer)?)?\s*\.?\s*(\d{1,3})\s*[.):\-]?\s*`)
	prefixPattern = regexp.MustCompile(`(?i)^(q|ans)`)
)

// SegmentAnswers splits raw extracted text into per-question spans. It is
// deterministic and never fails: missing structure lowers confidence instead
// of raising an error.
func SegmentAnswers(rawText string, expected []int) Segmentation {
	spans := make(map[int]string, len(expected))
	for _, questionNumber := range expected {
		spans[questionNumber] = ""
	}

	if len(expected) == 0 {
		return Segmentation{Spans: spans, Confidence: 1}
	}

	expectedSet := make(map[int]struct{}, len(expected))
	for _, questionNumber := range expected {
		expectedSet[questionNumber] = struct{}{}
	}

	type segment struct {
		question int
		text     strings.Builder
	}

	var segments []*segment
	var current *segment

	for _, line := range strings.Split(rawText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if number, rest, ok := matchMarker(trimmed); ok {
			current = &segment{question: number}
			current.text.WriteString(rest)
			segments = append(segments, current)
			continue
		}

		if current != nil {
			if current.text.Len() > 0 {
				current.text.WriteString(" ")
			}
			current.text.WriteString(trimmed)
		}
	}

	if len(segments) == 0 {
		// No recognizable structure: hand everything to the first expected
		// question and let the review flag do its job.
		spans[expected[0]] = strings.TrimSpace(strings.Join(strings.Fields(rawText), " "))
		return Segmentation{Spans: spans, Confidence: 0}
	}

	matched := make(map[int]struct{})
	for _, seg := range segments {
		if _, ok := expectedSet[seg.question]; !ok {
			continue
		}
		if _, seen := matched[seg.question]; seen {
			continue
		}
		matched[seg.question] = struct{}{}
		spans[seg.question] = strings.TrimSpace(seg.text.String())
	}

	confidence := float64(len(matched)) / float64(len(expected))
	if confidence > 1 {
		confidence = 1
	}

	return Segmentation{Spans: spans, Confidence: confidence}
}

// matchMarker reports whether a line starts with a question marker and
// returns the question number plus the remainder of the line. A bare number
// with no delimiter and no prefix is not a marker; it is too likely to be
// answer content.
func matchMarker(line string) (int, string, bool) {
	match := markerPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, "", false
	}

	full := match[0]
	hasPrefix := prefixPattern.MatchString(strings.TrimSpace(full))
	hasDelimiter := strings.ContainsAny(full, ".):-")
	if !hasPrefix && !hasDelimiter {
		return 0, "", false
	}

	number, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, "", false
	}

	return number, strings.TrimSpace(line[len(full):]), true
}
