package plan

import (
	"fmt"
	"strconv"

	"plancost/core/determinism"
)

// validator checks a single attribute value
type validator func(value string) error

// kindSchema is the fixed attribute contract for one resource kind.
// Normalization rejects attributes outside required+optional and
// missing required keys, so downstream code never re-validates.
type kindSchema struct {
	required     []string
	optional     []string
	validators   map[string]validator
	pricingAttrs []string
}

func enumOf(allowed ...string) validator {
	return func(value string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %v, got %q", allowed, value)
	}
}

func positiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer, got %q", value)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func percent(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer, got %q", value)
	}
	if n < 0 || n > 100 {
		return fmt.Errorf("must be between 0 and 100, got %d", n)
	}
	return nil
}

func boolean(value string) error {
	if value != "true" && value != "false" {
		return fmt.Errorf("must be true or false, got %q", value)
	}
	return nil
}

func nonEmpty(value string) error {
	if value == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

var schemas = map[Kind]kindSchema{
	KindCompute: {
		required: []string{AttrInstanceClass},
		optional: []string{AttrUsagePattern, AttrUtilizationPct},
		validators: map[string]validator{
			AttrInstanceClass:  nonEmpty,
			AttrUsagePattern:   enumOf(UsageSustained, UsageIntermittent, UsageBurst),
			AttrUtilizationPct: percent,
		},
		pricingAttrs: []string{AttrInstanceClass},
	},
	KindManagedDatabase: {
		required: []string{AttrInstanceClass, AttrAllocatedGB},
		optional: []string{AttrEngine, AttrMultiAZ, AttrUsagePattern, AttrUtilizationPct},
		validators: map[string]validator{
			AttrInstanceClass:  nonEmpty,
			AttrAllocatedGB:    positiveInt,
			AttrEngine:         nonEmpty,
			AttrMultiAZ:        boolean,
			AttrUsagePattern:   enumOf(UsageSustained, UsageIntermittent, UsageBurst),
			AttrUtilizationPct: percent,
		},
		pricingAttrs: []string{AttrInstanceClass, AttrEngine},
	},
	KindObjectStorage: {
		required: []string{AttrStorageClass, AttrAllocatedGB},
		optional: []string{AttrAccessPattern},
		validators: map[string]validator{
			AttrStorageClass:  nonEmpty,
			AttrAllocatedGB:   positiveInt,
			AttrAccessPattern: enumOf(AccessFrequent, AccessInfrequent, AccessArchive),
		},
		pricingAttrs: []string{AttrStorageClass},
	},
	KindBlockStorage: {
		required: []string{AttrVolumeType, AttrAllocatedGB},
		optional: []string{AttrIOPS},
		validators: map[string]validator{
			AttrVolumeType:  nonEmpty,
			AttrAllocatedGB: positiveInt,
			AttrIOPS:        positiveInt,
		},
		pricingAttrs: []string{AttrVolumeType},
	},
}

// validate enforces the schema against a raw attribute map
func (s kindSchema) validate(attrs map[string]string) error {
	allowed := make(map[string]bool, len(s.required)+len(s.optional))
	for _, key := range s.required {
		allowed[key] = true
		if _, ok := attrs[key]; !ok {
			return fmt.Errorf("missing required attribute %q", key)
		}
	}
	for _, key := range s.optional {
		allowed[key] = true
	}

	for _, key := range determinism.SortedKeys(attrs) {
		if !allowed[key] {
			return fmt.Errorf("unknown attribute %q", key)
		}
		if v, ok := s.validators[key]; ok {
			if err := v(attrs[key]); err != nil {
				return fmt.Errorf("attribute %q: %w", key, err)
			}
		}
	}
	return nil
}
