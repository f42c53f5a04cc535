package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"plancost/core/costing"
	"plancost/core/plan"
)

var two = decimal.NewFromInt(2)

// InstanceTypeRule suggests one class size down when reported
// utilization sits below the threshold. One size down halves the
// instance component; storage components are untouched.
type InstanceTypeRule struct{}

func (InstanceTypeRule) Category() Category { return CategoryInstanceType }

func (InstanceTypeRule) Evaluate(r plan.Resource, est costing.CostEstimate, cfg Config) []Proposal {
	if r.Kind != plan.KindCompute && r.Kind != plan.KindManagedDatabase {
		return nil
	}
	util, ok := r.UtilizationPct()
	if !ok || util >= cfg.UtilizationThreshold {
		return nil
	}
	smaller, ok := SizeDown(r.InstanceClass())
	if !ok {
		return nil
	}
	instance, ok := est.Component(costing.ComponentInstanceHours)
	if !ok {
		return nil
	}
	return []Proposal{{
		Action:        fmt.Sprintf("Downsize %s to %s (%d%% utilization)", r.InstanceClass(), smaller, util),
		SuggestedCost: est.MonthlyCost.Decimal.Sub(instance.Div(two)),
		Complexity:    LevelMedium,
	}}
}

// PurchasingRule suggests reserved capacity for sustained workloads,
// discounting the instance component by the configured fraction.
type PurchasingRule struct{}

func (PurchasingRule) Category() Category { return CategoryPurchasing }

func (PurchasingRule) Evaluate(r plan.Resource, est costing.CostEstimate, cfg Config) []Proposal {
	if r.Kind != plan.KindCompute && r.Kind != plan.KindManagedDatabase {
		return nil
	}
	if r.UsagePattern() != plan.UsageSustained {
		return nil
	}
	instance, ok := est.Component(costing.ComponentInstanceHours)
	if !ok {
		return nil
	}
	return []Proposal{{
		Action:        fmt.Sprintf("Purchase reserved capacity (%s%% discount on instance hours)", cfg.ReservedDiscount.Mul(hundred)),
		SuggestedCost: est.MonthlyCost.Decimal.Sub(instance.Mul(cfg.ReservedDiscount)),
		Complexity:    LevelLow,
	}}
}

// StorageClassRule reprices Standard object storage with infrequent
// access at Standard-IA rates, and gp2 block volumes at gp3 rates.
type StorageClassRule struct{}

func (StorageClassRule) Category() Category { return CategoryStorageClass }

func (StorageClassRule) Evaluate(r plan.Resource, est costing.CostEstimate, cfg Config) []Proposal {
	gb := decimal.NewFromInt(int64(r.AllocatedGB()))

	switch r.Kind {
	case plan.KindObjectStorage:
		if r.StorageClass() != "Standard" || r.AccessPattern() != plan.AccessInfrequent {
			return nil
		}
		rate, ok := cfg.storageRate("Standard-IA")
		if !ok {
			return nil
		}
		return []Proposal{{
			Action:        "Transition Standard objects to Standard-IA for infrequent access",
			SuggestedCost: rate.Mul(gb),
			Complexity:    LevelLow,
		}}

	case plan.KindBlockStorage:
		if r.VolumeType() != "gp2" {
			return nil
		}
		rate, ok := cfg.storageRate("gp3")
		if !ok {
			return nil
		}
		return []Proposal{{
			Action:        "Migrate gp2 volume to gp3",
			SuggestedCost: rate.Mul(gb),
			Complexity:    LevelLow,
		}}
	}
	return nil
}

// LifecycleRule suggests a lifecycle policy moving archive-pattern
// object storage to Glacier.
type LifecycleRule struct{}

func (LifecycleRule) Category() Category { return CategoryLifecycle }

func (LifecycleRule) Evaluate(r plan.Resource, est costing.CostEstimate, cfg Config) []Proposal {
	if r.Kind != plan.KindObjectStorage || r.AccessPattern() != plan.AccessArchive {
		return nil
	}
	rate, ok := cfg.storageRate("Glacier")
	if !ok {
		return nil
	}
	gb := decimal.NewFromInt(int64(r.AllocatedGB()))
	return []Proposal{{
		Action:        "Add a lifecycle policy transitioning archived objects to Glacier",
		SuggestedCost: rate.Mul(gb),
		Complexity:    LevelMedium,
	}}
}

// ScalingRule suggests scheduled capacity for compute that does not
// run flat out, saving the configured fraction of instance hours.
type ScalingRule struct{}

func (ScalingRule) Category() Category { return CategoryScaling }

func (ScalingRule) Evaluate(r plan.Resource, est costing.CostEstimate, cfg Config) []Proposal {
	if r.Kind != plan.KindCompute {
		return nil
	}
	pattern := r.UsagePattern()
	if pattern != plan.UsageIntermittent && pattern != plan.UsageBurst {
		return nil
	}
	instance, ok := est.Component(costing.ComponentInstanceHours)
	if !ok {
		return nil
	}
	return []Proposal{{
		Action:        fmt.Sprintf("Schedule capacity around %s usage", pattern),
		SuggestedCost: est.MonthlyCost.Decimal.Sub(instance.Mul(cfg.ScheduleSavings)),
		Complexity:    LevelMedium,
	}}
}
