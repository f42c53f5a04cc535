// Package plan defines the normalized resource model and the plan
// artifact loader. This package contains the only entry point through
// which raw plan data enters the engine.
package plan

import "strconv"

// Kind classifies a resource by its billing shape
type Kind string

const (
	KindCompute         Kind = "compute"
	KindManagedDatabase Kind = "managed_database"
	KindObjectStorage   Kind = "object_storage"
	KindBlockStorage    Kind = "block_storage"
)

// kindAliases maps Terraform-style type names onto canonical kinds
var kindAliases = map[string]Kind{
	"aws_instance":    KindCompute,
	"aws_db_instance": KindManagedDatabase,
	"aws_s3_bucket":   KindObjectStorage,
	"aws_ebs_volume":  KindBlockStorage,
}

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is recognized
func (k Kind) IsValid() bool {
	switch k {
	case KindCompute, KindManagedDatabase, KindObjectStorage, KindBlockStorage:
		return true
	default:
		return false
	}
}

// ParseKind resolves a kind name or a known alias to a canonical Kind
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	if k.IsValid() {
		return k, true
	}
	if alias, ok := kindAliases[s]; ok {
		return alias, true
	}
	return "", false
}

// Service returns the pricing service code for the kind
func (k Kind) Service() string {
	switch k {
	case KindCompute:
		return "AmazonEC2"
	case KindManagedDatabase:
		return "AmazonRDS"
	case KindObjectStorage:
		return "AmazonS3"
	case KindBlockStorage:
		return "AmazonEBS"
	default:
		return ""
	}
}

// Kinds returns all valid kinds in declaration order
func Kinds() []Kind {
	return []Kind{KindCompute, KindManagedDatabase, KindObjectStorage, KindBlockStorage}
}

// Attribute keys accepted by the kind schemas
const (
	AttrInstanceClass  = "instance_class"
	AttrStorageClass   = "storage_class"
	AttrVolumeType     = "volume_type"
	AttrAllocatedGB    = "allocated_gb"
	AttrEngine         = "engine"
	AttrMultiAZ        = "multi_az"
	AttrIOPS           = "iops"
	AttrUsagePattern   = "usage_pattern"
	AttrUtilizationPct = "utilization_pct"
	AttrAccessPattern  = "access_pattern"
)

// Usage pattern values
const (
	UsageSustained    = "sustained"
	UsageIntermittent = "intermittent"
	UsageBurst        = "burst"
)

// Access pattern values
const (
	AccessFrequent   = "frequent"
	AccessInfrequent = "infrequent"
	AccessArchive    = "archive"
)

// Resource is a single normalized infrastructure resource. Immutable
// once produced by Normalize; identity is ID.
type Resource struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Region     string            `json:"region"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// attr returns a raw attribute value
func (r Resource) attr(key string) string {
	return r.Attributes[key]
}

// InstanceClass returns the declared instance class (compute, managed_database)
func (r Resource) InstanceClass() string {
	return r.attr(AttrInstanceClass)
}

// StorageClass returns the declared storage class (object_storage)
func (r Resource) StorageClass() string {
	return r.attr(AttrStorageClass)
}

// VolumeType returns the declared volume type (block_storage)
func (r Resource) VolumeType() string {
	return r.attr(AttrVolumeType)
}

// Engine returns the database engine, if declared
func (r Resource) Engine() string {
	return r.attr(AttrEngine)
}

// AllocatedGB returns the declared allocated storage in GB. Zero when
// the kind has no storage dimension.
func (r Resource) AllocatedGB() int {
	n, _ := strconv.Atoi(r.attr(AttrAllocatedGB))
	return n
}

// UtilizationPct returns the declared utilization hint and whether it
// was present.
func (r Resource) UtilizationPct() (int, bool) {
	v := r.attr(AttrUtilizationPct)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// UsagePattern returns the declared usage pattern hint, if any
func (r Resource) UsagePattern() string {
	return r.attr(AttrUsagePattern)
}

// AccessPattern returns the declared access pattern hint, if any
func (r Resource) AccessPattern() string {
	return r.attr(AttrAccessPattern)
}

// PricingSpec returns the subset of attributes that determine the unit
// price for this resource. The resource id never participates: two
// resources with identical specs share a price.
func (r Resource) PricingSpec() map[string]string {
	spec := make(map[string]string)
	for _, key := range schemas[r.Kind].pricingAttrs {
		if v, ok := r.Attributes[key]; ok {
			spec[key] = v
		}
	}
	return spec
}

// PricingAttrKeys returns the attribute keys that feed the spec
// fingerprint for this resource's kind.
func (r Resource) PricingAttrKeys() []string {
	return schemas[r.Kind].pricingAttrs
}
