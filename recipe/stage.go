package recipe

import (
	"fmt"
	"strings"
)

// Stage is one phase of a recipe's build lifecycle.
type Stage int

const (
	StageConfigure Stage = iota
	StageRequirements
	StageBuildRequirements
	StageSource
	StageGenerate
	StageBuild
	StagePackage
	StagePackageInfo
)

var stageNames = [...]string{
	StageConfigure:         "configure",
	StageRequirements:      "requirements",
	StageBuildRequirements: "build-requirements",
	StageSource:            "source",
	StageGenerate:          "generate",
	StageBuild:             "build",
	StagePackage:           "package",
	StagePackageInfo:       "package-info",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ParseStage parses a stage name. Underscores are accepted in place of dashes.
func ParseStage(name string) (Stage, error) {
	name = strings.ReplaceAll(strings.ToLower(name), "_", "-")
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle stage %q", name)
}

// Lifecycle is the order in which the executor runs stages for a node.
var Lifecycle = []Stage{
	StageRequirements,
	StageBuildRequirements,
	StageConfigure,
	StageGenerate,
	StageSource,
	StageBuild,
	StagePackage,
	StagePackageInfo,
}

// StageSet is the set of stages a recipe implements.
type StageSet uint16

// StagesOf returns the set containing stages.
func StagesOf(stages ...Stage) StageSet {
	var s StageSet
	for _, st := range stages {
		s = s.With(st)
	}
	return s
}

// Has reports whether st is in the set.
func (s StageSet) Has(st Stage) bool {
	return s&(1<<uint(st)) != 0
}

// With returns s with st added.
func (s StageSet) With(st Stage) StageSet {
	return s | 1<<uint(st)
}

// Slice returns the stages of s in lifecycle order.
func (s StageSet) Slice() []Stage {
	var ret []Stage
	for _, st := range Lifecycle {
		if s.Has(st) {
			ret = append(ret, st)
		}
	}
	return ret
}

func (s StageSet) String() string {
	stages := s.Slice()
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.String()
	}
	return "{" + strings.Join(names, ",") + "}"
}
