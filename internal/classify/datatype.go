package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/IRakow/aiaviizn-capture/internal/model"
)

var (
	currencyRe = regexp.MustCompile(`^\(?[-+]?[$€£]\s?\d[\d,]*(?:\.\d{1,2})?\)?$`)
	percentRe  = regexp.MustCompile(`^[-+]?\d[\d,]*(?:\.\d+)?\s?%$`)
	dateRes    = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}$`),
		regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{2,4}$`),
		regexp.MustCompile(`(?i)^(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}$`),
		regexp.MustCompile(`(?i)^\d{1,2}\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{4}$`),
	}
)

// InferDataType guesses a field's data type from its sample value. Used when
// the winning classification source does not declare one. Falls back to text.
func InferDataType(value string) model.DataType {
	v := strings.TrimSpace(value)
	if v == "" {
		return model.DataTypeText
	}

	if currencyRe.MatchString(v) {
		return model.DataTypeCurrency
	}
	if percentRe.MatchString(v) {
		return model.DataTypePercentage
	}
	for _, re := range dateRes {
		if re.MatchString(v) {
			return model.DataTypeDate
		}
	}

	bare := strings.ReplaceAll(v, ",", "")
	if _, err := strconv.ParseFloat(bare, 64); err == nil {
		return model.DataTypeNumber
	}

	return model.DataTypeText
}
