package rules

import "strings"

// sizeLadder orders instance sizes from smallest to largest. Families
// that skip steps (no 3xlarge, for example) still downsize correctly
// because only the relative position matters.
var sizeLadder = []string{
	"nano",
	"micro",
	"small",
	"medium",
	"large",
	"xlarge",
	"2xlarge",
	"4xlarge",
	"8xlarge",
	"12xlarge",
	"16xlarge",
	"24xlarge",
	"32xlarge",
}

var sizeRank = func() map[string]int {
	m := make(map[string]int, len(sizeLadder))
	for i, s := range sizeLadder {
		m[s] = i
	}
	return m
}()

// SizeDown returns the instance class one size smaller, preserving the
// family prefix ("db.r5.large" downsizes to "db.r5.medium"). It
// reports false for the smallest size and for classes whose size token
// is not on the ladder.
func SizeDown(class string) (string, bool) {
	dot := strings.LastIndex(class, ".")
	if dot < 0 {
		return "", false
	}
	family, size := class[:dot], class[dot+1:]
	rank, ok := sizeRank[size]
	if !ok || rank == 0 {
		return "", false
	}
	return family + "." + sizeLadder[rank-1], true
}
