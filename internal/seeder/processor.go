package seeder

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
)

// ContentProcessor handles text processing and cleanup
type ContentProcessor struct {
	multiWhitespace *regexp.Regexp
	htmlTags        *regexp.Regexp
	ratingNumber    *regexp.Regexp
}

func NewContentProcessor() *ContentProcessor {
	return &ContentProcessor{
		multiWhitespace: regexp.MustCompile(`\s+`),
		htmlTags:        regexp.MustCompile(`<[^>]*>`),
		ratingNumber:    regexp.MustCompile(`\d+(?:[.,]\d+)?`),
	}
}

// CleanContent strips markup and collapses whitespace into single spaces.
func (cp *ContentProcessor) CleanContent(content string) string {
	content = cp.htmlTags.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)
	content = cp.multiWhitespace.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

// CleanAuthor also drops a leading "by".
func (cp *ContentProcessor) CleanAuthor(author string) string {
	author = cp.CleanContent(author)
	if len(author) > 3 && strings.EqualFold(author[:3], "by ") {
		author = strings.TrimSpace(author[3:])
	}
	return author
}

// ParseRating reads ratings written as "4", "4/5", "4.5 out of 5" or as a run
// of filled stars. Fractions round to the nearest whole star. The second
// result is false when nothing usable is found or the value is out of range.
func (cp *ContentProcessor) ParseRating(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	if stars := strings.Count(raw, "★"); stars > 0 {
		return stars, stars >= models.MinRating && stars <= models.MaxRating
	}

	nums := cp.ratingNumber.FindAllString(raw, 2)
	if len(nums) == 0 {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.Replace(nums[0], ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}

	if len(nums) == 2 {
		scale, err := strconv.ParseFloat(strings.Replace(nums[1], ",", ".", 1), 64)
		if err == nil && scale > 0 && scale != models.MaxRating {
			value = value / scale * models.MaxRating
		}
	}

	rating := int(math.Round(value))
	return rating, rating >= models.MinRating && rating <= models.MaxRating
}

// Truncate cuts s to at most max runes on a word boundary where possible.
func (cp *ContentProcessor) Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
