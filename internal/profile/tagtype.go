package profile

import (
	"regexp"
	"strconv"
)

// TagType classifies the values observed under one tag key.
type TagType string

const (
	TagNumeric     TagType = "numeric"
	TagIdentifier  TagType = "identifier"
	TagText        TagType = "text"
	TagCategorical TagType = "categorical"
)

// MaxTypeSamples bounds how many values InferTagType inspects.
const MaxTypeSamples = 1000

var identifierRes = []*regexp.Regexp{
	regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`), // UUID
	regexp.MustCompile(`^[a-zA-Z0-9]{20,}$`),       // long alphanumeric id
	regexp.MustCompile(`^[a-zA-Z]+-[a-zA-Z0-9-]+$`), // kebab-case id
}

// InferTagType classifies a sample of tag values. At most MaxTypeSamples
// values are considered; an empty sample yields the categorical default.
//
// Order of tests: numeric when >=80% of values parse as floats, identifier
// when >=50% match a known id shape, text when the distinct-value ratio
// exceeds 0.8, otherwise categorical.
func InferTagType(samples []string) TagType {
	if len(samples) > MaxTypeSamples {
		samples = samples[:MaxTypeSamples]
	}
	if len(samples) == 0 {
		return TagCategorical
	}

	total := float64(len(samples))

	numeric := 0
	for _, v := range samples {
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			numeric++
		}
	}
	if float64(numeric)/total > 0.8 {
		return TagNumeric
	}

	identifiers := 0
	for _, v := range samples {
		for _, re := range identifierRes {
			if re.MatchString(v) {
				identifiers++
				break
			}
		}
	}
	if float64(identifiers)/total > 0.5 {
		return TagIdentifier
	}

	distinct := make(map[string]struct{}, len(samples))
	for _, v := range samples {
		distinct[v] = struct{}{}
	}
	if float64(len(distinct))/total > 0.8 {
		return TagText
	}
	return TagCategorical
}
