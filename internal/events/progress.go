package events

// stageProgress maps stage names to the progress percentage shown to
// observers. The mapping is static and monotonically non-decreasing in stage
// order; the event list remains the sole source of truth for what has
// actually happened.
var stageProgress = map[string]int{
	"accepted":              5,
	"analysis":              15,
	"validation":            30,
	"dockerfile_generation": 45,
	"terraform_generation":  65,
	"quality_check":         80,
	"delivery":              90,
	"completed":             100,
}

// ProgressFor returns the progress value for a stage, or 0 for an unknown
// stage so callers never regress a previously reported value.
func ProgressFor(stage string) int {
	if p, ok := stageProgress[stage]; ok {
		return p
	}
	return 0
}
