package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/studiva/automation-api/internal/models"
)

// StrategyName identifies a matching heuristic.
type StrategyName string

const (
	StrategySurname  StrategyName = "surname_matching"
	StrategySubject  StrategyName = "subject_matching"
	StrategyGrade    StrategyName = "grade_matching"
	StrategyCapacity StrategyName = "capacity_matching"
	StrategySemantic StrategyName = "semantic_matching"
)

// Per-strategy weights used when blending confidence factors into an
// overall score. Surname drops to the partial weight when the best
// match lacked a full-name signal.
var strategyWeights = map[StrategyName]float64{
	StrategySurname:  0.9,
	StrategySubject:  0.8,
	StrategyGrade:    0.7,
	StrategyCapacity: 0.6,
	StrategySemantic: 0.5,
}

const (
	surnamePartialWeight = 0.6
	surnameExactCutoff   = 0.8

	defaultMaxCapacity = 30
	softCapacityBuffer = 25
	maxGradeDistance   = 3
)

// MatchSource is the strategy-facing view of the entity being analyzed.
type MatchSource struct {
	Type       models.EntityType
	ID         string
	Name       string
	Age        int
	Grade      int
	Subject    string
	SubjectIDs []string
	HasParent  bool
	ChildCount int
}

// MatchCandidate is the strategy-facing view of a potential target.
type MatchCandidate struct {
	Type        models.EntityType
	ID          string
	Name        string
	Grade       int
	Subject     string
	SubjectIDs  []string
	Enrolled    int
	MaxCapacity int
	ChildCount  int
}

// Match is a scored candidate produced by a strategy.
type Match struct {
	TargetID     string
	TargetType   models.EntityType
	TargetName   string
	Relationship models.RelationshipType
	Confidence   float64
	Reasoning    string
}

// StrategyFunc scores a candidate pool against a source entity. All
// strategies are pure: no I/O, no shared state.
type StrategyFunc func(src MatchSource, pool []MatchCandidate) []Match

type strategyPair struct {
	Source models.EntityType
	Target models.EntityType
}

// strategyTable maps (sourceType, targetType) pairs to the heuristics
// that apply to them. Both the analyzer and the workflow orchestrator
// consume this table; heuristic bodies exist exactly once.
var strategyTable = map[strategyPair][]StrategyName{
	{models.EntityParent, models.EntityStudent}: {StrategySurname},
	{models.EntityStudent, models.EntityParent}: {StrategySurname},
	{models.EntityTeacher, models.EntityClass}:  {StrategySubject, StrategyCapacity},
	{models.EntityClass, models.EntityTeacher}:  {StrategySubject},
	{models.EntityStudent, models.EntityClass}:  {StrategyGrade, StrategySemantic, StrategyCapacity},
}

var strategyFuncs = map[StrategyName]StrategyFunc{
	StrategySurname:  matchBySurname,
	StrategySubject:  matchBySubject,
	StrategyGrade:    matchByGrade,
	StrategyCapacity: matchByCapacity,
	StrategySemantic: matchBySemantics,
}

// StrategiesFor returns the heuristics applicable to a type pair.
func StrategiesFor(source, target models.EntityType) []StrategyName {
	return strategyTable[strategyPair{Source: source, Target: target}]
}

// TargetTypesFor returns every target type the source type can be
// analyzed against, in table order.
func TargetTypesFor(source models.EntityType) []models.EntityType {
	var targets []models.EntityType
	for _, target := range []models.EntityType{models.EntityStudent, models.EntityParent, models.EntityTeacher, models.EntityClass} {
		if len(StrategiesFor(source, target)) > 0 {
			targets = append(targets, target)
		}
	}
	return targets
}

func relationshipFor(source, target models.EntityType) models.RelationshipType {
	switch {
	case (source == models.EntityParent && target == models.EntityStudent) ||
		(source == models.EntityStudent && target == models.EntityParent):
		return models.RelationshipParentChild
	case (source == models.EntityTeacher && target == models.EntityClass) ||
		(source == models.EntityClass && target == models.EntityTeacher):
		return models.RelationshipTeacherClass
	case source == models.EntityStudent && target == models.EntityClass:
		return models.RelationshipClassAssignment
	default:
		return ""
	}
}

// surname extracts the last whitespace-delimited token of a name.
func surname(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

func givenName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// matchBySurname links parents and students sharing an exact surname.
// A case-insensitive exact surname match is the only inclusion
// criterion; confidence is then graded within [0.7, 0.9].
func matchBySurname(src MatchSource, pool []MatchCandidate) []Match {
	srcSurname := surname(src.Name)
	if srcSurname == "" {
		return nil
	}

	var matches []Match
	for _, cand := range pool {
		if surname(cand.Name) != srcSurname {
			continue
		}
		confidence := 0.8
		switch {
		case cand.ChildCount >= 3:
			confidence = 0.7
		case givenName(cand.Name) == givenName(src.Name):
			confidence = 0.9
		}
		matches = append(matches, Match{
			TargetID:     cand.ID,
			TargetType:   cand.Type,
			TargetName:   cand.Name,
			Relationship: relationshipFor(src.Type, cand.Type),
			Confidence:   confidence,
			Reasoning:    fmt.Sprintf("surname %q matches %q", srcSurname, cand.Name),
		})
	}
	return matches
}

// matchBySubject links teachers and classes whose subjects intersect.
// Confidence is fixed for an exact subject signal.
func matchBySubject(src MatchSource, pool []MatchCandidate) []Match {
	var matches []Match
	for _, cand := range pool {
		exactName := src.Subject != "" && strings.EqualFold(src.Subject, cand.Subject)
		if !exactName && !intersects(src.SubjectIDs, cand.SubjectIDs) {
			continue
		}
		matches = append(matches, Match{
			TargetID:     cand.ID,
			TargetType:   cand.Type,
			TargetName:   cand.Name,
			Relationship: relationshipFor(src.Type, cand.Type),
			Confidence:   0.8,
			Reasoning:    fmt.Sprintf("subject overlap between %q and %q", src.Name, cand.Name),
		})
	}
	return matches
}

var gradePattern = regexp.MustCompile(`(?i)grade\s*(\d+)`)

// gradeFromName parses the numeric grade out of a "Grade N" class name.
func gradeFromName(name string) int {
	groups := gradePattern.FindStringSubmatch(name)
	if len(groups) < 2 {
		return 0
	}
	grade, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0
	}
	return grade
}

// gradeOf resolves the source's grade, deriving it from age when the
// record carries none.
func gradeOf(src MatchSource) int {
	if src.Grade > 0 {
		return src.Grade
	}
	if src.Age > 0 {
		return src.Age/6 + 1
	}
	return 0
}

// matchByGrade scores classes by distance between the class grade and
// the student grade. Distance <= 1 earns full credit; anything past
// maxGradeDistance is excluded.
func matchByGrade(src MatchSource, pool []MatchCandidate) []Match {
	srcGrade := gradeOf(src)
	if srcGrade <= 0 {
		return nil
	}

	var matches []Match
	for _, cand := range pool {
		candGrade := cand.Grade
		if candGrade <= 0 {
			candGrade = gradeFromName(cand.Name)
		}
		if candGrade <= 0 {
			continue
		}
		distance := srcGrade - candGrade
		if distance < 0 {
			distance = -distance
		}
		var confidence float64
		switch {
		case distance <= 1:
			confidence = 0.85
		case distance == 2:
			confidence = 0.6
		case distance == maxGradeDistance:
			confidence = 0.45
		default:
			continue
		}
		matches = append(matches, Match{
			TargetID:     cand.ID,
			TargetType:   cand.Type,
			TargetName:   cand.Name,
			Relationship: relationshipFor(src.Type, cand.Type),
			Confidence:   confidence,
			Reasoning:    fmt.Sprintf("grade distance %d between student grade %d and %q", distance, srcGrade, cand.Name),
		})
	}
	return matches
}

// matchByCapacity proposes classes with free seats. Full classes are
// excluded outright; confidence scales with the available fraction,
// capped at 0.8 and dampened above the soft buffer.
func matchByCapacity(src MatchSource, pool []MatchCandidate) []Match {
	var matches []Match
	for _, cand := range pool {
		maxCapacity := cand.MaxCapacity
		if maxCapacity <= 0 {
			maxCapacity = defaultMaxCapacity
		}
		if cand.Enrolled >= maxCapacity {
			continue
		}
		available := float64(maxCapacity-cand.Enrolled) / float64(maxCapacity)
		confidence := 0.3 + 0.5*available
		if confidence > 0.8 {
			confidence = 0.8
		}
		if cand.Enrolled >= softCapacityBuffer {
			confidence *= 0.75
		}
		matches = append(matches, Match{
			TargetID:     cand.ID,
			TargetType:   cand.Type,
			TargetName:   cand.Name,
			Relationship: relationshipFor(src.Type, cand.Type),
			Confidence:   confidence,
			Reasoning:    fmt.Sprintf("%d of %d seats taken in %q", cand.Enrolled, maxCapacity, cand.Name),
		})
	}
	return matches
}

// matchBySemantics is the weakest heuristic: attribute overlap boosts
// a low base confidence. Candidates that earn no boost are skipped.
func matchBySemantics(src MatchSource, pool []MatchCandidate) []Match {
	srcGrade := gradeOf(src)

	var matches []Match
	for _, cand := range pool {
		confidence := 0.3
		var signals []string
		if srcGrade > 0 && strings.Contains(cand.Name, strconv.Itoa(srcGrade)) {
			confidence += 0.2
			signals = append(signals, fmt.Sprintf("name mentions grade %d", srcGrade))
		}
		if intersects(src.SubjectIDs, cand.SubjectIDs) {
			confidence += 0.2
			signals = append(signals, "subject overlap")
		}
		if len(signals) == 0 {
			continue
		}
		if confidence > 0.7 {
			confidence = 0.7
		}
		matches = append(matches, Match{
			TargetID:     cand.ID,
			TargetType:   cand.Type,
			TargetName:   cand.Name,
			Relationship: relationshipFor(src.Type, cand.Type),
			Confidence:   confidence,
			Reasoning:    fmt.Sprintf("semantic signals for %q: %s", cand.Name, strings.Join(signals, ", ")),
		})
	}
	return matches
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
