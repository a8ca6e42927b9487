package billing

import (
	"errors"
	"fmt"
	"strconv"
)

// Product metadata keys the provider-side plan configuration must carry.
// Limits are sourced exclusively from here; the system never hardcodes
// plan entitlements.
const (
	planMetaPlanID     = "plan_id"
	planMetaSeats      = "max_seats"
	planMetaProviders  = "max_providers"
	planMetaThroughput = "max_throughput"
	planMetaTrialDays  = "trial_days"
)

// PlanMetadata is the typed form of the provider's product metadata.
type PlanMetadata struct {
	PlanID     string
	Seats      int
	Providers  int
	Throughput int
	TrialDays  int // 0 means the plan defines no trial; the caller decides the fallback
}

// ParsePlanMetadata validates the product metadata attached to a
// subscription's price. Missing or malformed required fields are rejected
// here, at the boundary, rather than propagating zero values into tenant
// creation. These are upstream-permanent errors: retrying cannot fix a
// misconfigured plan.
func ParsePlanMetadata(meta map[string]string) (*PlanMetadata, error) {
	if len(meta) == 0 {
		return nil, ErrMissingPlanMetadata
	}

	planID, ok := meta[planMetaPlanID]
	if !ok || planID == "" {
		return nil, errors.Join(ErrMissingPlanMetadata, fmt.Errorf("missing %q", planMetaPlanID))
	}

	seats, err := requiredInt(meta, planMetaSeats)
	if err != nil {
		return nil, err
	}
	providers, err := requiredInt(meta, planMetaProviders)
	if err != nil {
		return nil, err
	}
	throughput, err := requiredInt(meta, planMetaThroughput)
	if err != nil {
		return nil, err
	}

	trialDays := 0
	if raw, ok := meta[planMetaTrialDays]; ok && raw != "" {
		trialDays, err = strconv.Atoi(raw)
		if err != nil || trialDays < 0 {
			return nil, errors.Join(ErrInvalidPlanMetadata, fmt.Errorf("invalid %q: %q", planMetaTrialDays, raw))
		}
	}

	return &PlanMetadata{
		PlanID:     planID,
		Seats:      seats,
		Providers:  providers,
		Throughput: throughput,
		TrialDays:  trialDays,
	}, nil
}

func requiredInt(meta map[string]string, key string) (int, error) {
	raw, ok := meta[key]
	if !ok || raw == "" {
		return 0, errors.Join(ErrMissingPlanMetadata, fmt.Errorf("missing %q", key))
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Join(ErrInvalidPlanMetadata, fmt.Errorf("invalid %q: %q", key, raw))
	}
	return n, nil
}
