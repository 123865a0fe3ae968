package batch

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// codeSuffix captures the trailing sequence number of a batch code.
var codeSuffix = regexp.MustCompile(`-(\d+)$`)

// CodeGenerator derives batch codes of the form D{dryer}-{YYYYMMDD}-{seq},
// with seq zero-padded to three digits. The day is taken in loc.
type CodeGenerator struct {
	loc *time.Location
}

// NewCodeGenerator creates a generator that dates codes in loc. A nil loc
// means UTC.
func NewCodeGenerator(loc *time.Location) *CodeGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return &CodeGenerator{loc: loc}
}

// Prefix returns the code prefix shared by every batch of dryer on day,
// including the trailing dash.
func (g *CodeGenerator) Prefix(dryer int, day time.Time) string {
	return fmt.Sprintf("D%d-%s-", dryer, day.In(g.loc).Format("20060102"))
}

// Next returns the code following latest, the newest code already issued
// for dryer on day. An empty latest starts the sequence at 1, as does a
// latest whose suffix does not parse.
func (g *CodeGenerator) Next(dryer int, day time.Time, latest string) string {
	return fmt.Sprintf("%s%03d", g.Prefix(dryer, day), nextSequence(latest))
}

func nextSequence(latest string) int {
	if latest == "" {
		return 1
	}
	m := codeSuffix.FindStringSubmatch(latest)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return 1
	}
	return n + 1
}
