// Package pattern condenses event occurrences into timetable recurrence
// notation such as "Mi1-4 Th 9".
//
// Each occurrence starts out as its own Pattern holding one DayTime and one
// TermWeek. Patterns that share either all their day times or all their
// term weeks are merged, and the result is rendered with String.
package pattern

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"termcal/internal/terms"
)

// Pattern is a mergeable set of occurrences sharing either their weekly
// timeslots or their term weeks.
type Pattern struct {
	DayTimes  []DayTime
	TermWeeks []terms.TermWeek
}

// New returns the pattern for a single occurrence from start to end.
func New(cal *terms.Calendar, start, end time.Time) (*Pattern, error) {
	tw, err := cal.Classify(start)
	if err != nil {
		return nil, err
	}
	return Of(NewDayTime(start, end), tw), nil
}

// Of returns a single-occurrence pattern.
func Of(dt DayTime, tw terms.TermWeek) *Pattern {
	return &Pattern{
		DayTimes:  []DayTime{dt},
		TermWeeks: []terms.TermWeek{tw},
	}
}

// Clone returns a deep copy of p.
func (p *Pattern) Clone() *Pattern {
	return &Pattern{
		DayTimes:  append([]DayTime(nil), p.DayTimes...),
		TermWeeks: append([]terms.TermWeek(nil), p.TermWeeks...),
	}
}

// Merge folds other into p and reports whether it did. Patterns with equal
// day times pool their term weeks, which are then kept ordered by term and
// week. Otherwise patterns with equal term weeks pool their day times as-is.
// other is never modified.
func (p *Pattern) Merge(other *Pattern) bool {
	switch {
	case p.equalDayTimes(other):
		p.TermWeeks = append(p.TermWeeks, other.TermWeeks...)
		sort.SliceStable(p.TermWeeks, func(i, j int) bool {
			a, b := p.TermWeeks[i], p.TermWeeks[j]
			if !a.Term.Start.Equal(b.Term.Start) {
				return a.Term.Start.Before(b.Term.Start)
			}
			return a.Week < b.Week
		})
		return true
	case p.equalTermWeeks(other):
		p.DayTimes = append(p.DayTimes, other.DayTimes...)
		return true
	}
	return false
}

func (p *Pattern) equalDayTimes(other *Pattern) bool {
	if len(p.DayTimes) != len(other.DayTimes) {
		return false
	}
	for i := range p.DayTimes {
		if !p.DayTimes[i].Equal(other.DayTimes[i]) {
			return false
		}
	}
	return true
}

func (p *Pattern) equalTermWeeks(other *Pattern) bool {
	if len(p.TermWeeks) != len(other.TermWeeks) {
		return false
	}
	for i := range p.TermWeeks {
		if !p.TermWeeks[i].Equal(other.TermWeeks[i]) {
			return false
		}
	}
	return true
}

// Aggregate merges patterns greedily: each pattern, in the order given, is
// merged into the first resulting pattern that accepts it, or becomes a new
// resulting pattern. The result depends on the input order. The input
// patterns are left untouched.
func Aggregate(patterns []*Pattern) []*Pattern {
	final := make([]*Pattern, 0, len(patterns))
	for _, p := range patterns {
		candidate := p.Clone()
		merged := false
		for _, f := range final {
			if f.Merge(candidate) {
				merged = true
				break
			}
		}
		if !merged {
			final = append(final, candidate)
		}
	}
	return final
}

// String renders the pattern, e.g. "Mi1-4,6 Th 9" or "Le M,W-F 10-12".
func (p *Pattern) String() string {
	return p.formatTerms() + " " + p.formatTimes()
}

func (p *Pattern) formatTerms() string {
	weeksByTerm := make(map[int]map[int]bool)
	for _, tw := range p.TermWeeks {
		if weeksByTerm[tw.Term.Index] == nil {
			weeksByTerm[tw.Term.Index] = make(map[int]bool)
		}
		weeksByTerm[tw.Term.Index][tw.Week] = true
	}

	var b strings.Builder
	for _, index := range sortedKeys(weeksByTerm) {
		weeks := sortedKeys(weeksByTerm[index])

		b.WriteString(termName(index))
		if isFullTerm(weeks) {
			continue
		}
		blocks := make([]string, 0, len(weeks))
		for _, block := range consecutiveBlocks(weeks) {
			blocks = append(blocks, formatBlock(block, strconv.Itoa))
		}
		b.WriteString(strings.Join(blocks, ","))
	}
	return b.String()
}

func (p *Pattern) formatTimes() string {
	daysByTime := make(map[string]map[int]bool)
	for _, dt := range p.DayTimes {
		slot := dt.Format()
		if daysByTime[slot] == nil {
			daysByTime[slot] = make(map[int]bool)
		}
		daysByTime[slot][int(dt.DayOfWeek)] = true
	}

	slots := make([]string, 0, len(daysByTime))
	for slot := range daysByTime {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		days := sortedKeys(daysByTime[slot])
		blocks := make([]string, 0, len(days))
		for _, block := range consecutiveBlocks(days) {
			blocks = append(blocks, formatBlock(block, dayName))
		}
		out = append(out, strings.Join(blocks, ",")+" "+slot)
	}
	return strings.Join(out, " ")
}

func termName(index int) string {
	if index < 0 || index >= terms.TermsPerYear {
		return "??"
	}
	return terms.Names[index]
}

func dayName(day int) string {
	return DayNames[((day%7)+7)%7]
}

// isFullTerm reports whether weeks covers an entire term: exactly the eight
// weeks 0 through 7. weeks must be sorted.
func isFullTerm(weeks []int) bool {
	if len(weeks) != 8 {
		return false
	}
	for i, w := range weeks {
		if w != i {
			return false
		}
	}
	return true
}

// consecutiveBlocks splits sorted, distinct numbers into runs of consecutive
// integers: [1 2 3 5 7 8] becomes [[1 2 3] [5] [7 8]].
func consecutiveBlocks(numbers []int) [][]int {
	if len(numbers) == 0 {
		return nil
	}
	blocks := [][]int{{numbers[0]}}
	for i := 1; i < len(numbers); i++ {
		last := len(blocks) - 1
		if numbers[i] == numbers[i-1]+1 {
			blocks[last] = append(blocks[last], numbers[i])
		} else {
			blocks = append(blocks, []int{numbers[i]})
		}
	}
	return blocks
}

func formatBlock(block []int, name func(int) string) string {
	if len(block) > 1 {
		return name(block[0]) + "-" + name(block[len(block)-1])
	}
	return name(block[0])
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
