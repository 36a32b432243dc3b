package failure

import (
	"context"
	"sort"
)

// analyticsWindow bounds how many recent failures the aggregations scan.
const analyticsWindow = 10000

// ErrorCount is one entry in the ranked common-error list.
type ErrorCount struct {
	ErrorType string
	Count     int
}

// OperationCount is one entry in the ranked problematic-operation list.
type OperationCount struct {
	Operation string
	Count     int
}

// DailyCount is one day's failure total.
type DailyCount struct {
	Date  string // YYYY-MM-DD, UTC
	Count int
}

// Analytics summarizes the failure history.
type Analytics struct {
	TotalFailures         int64
	BlacklistedStrategies int
	MostCommonErrors      []ErrorCount     // ranked, most frequent first
	ProblematicOperations []OperationCount // ranked, most frequent first
	DailyTrends           []DailyCount     // ascending by date
}

// Analytics aggregates stored failures and the blacklist into a summary.
func (a *Analyzer) Analytics(ctx context.Context) *Analytics {
	out := &Analytics{}

	total, err := a.currentStore().CountFailures(ctx)
	if err != nil {
		a.degrade(ctx, err)
		total, _ = a.currentStore().CountFailures(ctx)
	}
	out.TotalFailures = total

	out.BlacklistedStrategies = len(a.Blacklist(ctx))

	recs, err := a.currentStore().Failures(ctx, Filter{Limit: analyticsWindow})
	if err != nil {
		a.degrade(ctx, err)
		recs = nil
	}

	byError := make(map[string]int)
	byOperation := make(map[string]int)
	byDay := make(map[string]int)
	for _, rec := range recs {
		byError[rec.ErrorType]++
		byOperation[rec.Operation]++
		byDay[rec.Timestamp.UTC().Format("2006-01-02")]++
	}

	for errType, n := range byError {
		out.MostCommonErrors = append(out.MostCommonErrors, ErrorCount{ErrorType: errType, Count: n})
	}
	sort.Slice(out.MostCommonErrors, func(i, j int) bool {
		if out.MostCommonErrors[i].Count != out.MostCommonErrors[j].Count {
			return out.MostCommonErrors[i].Count > out.MostCommonErrors[j].Count
		}
		return out.MostCommonErrors[i].ErrorType < out.MostCommonErrors[j].ErrorType
	})

	for op, n := range byOperation {
		out.ProblematicOperations = append(out.ProblematicOperations, OperationCount{Operation: op, Count: n})
	}
	sort.Slice(out.ProblematicOperations, func(i, j int) bool {
		if out.ProblematicOperations[i].Count != out.ProblematicOperations[j].Count {
			return out.ProblematicOperations[i].Count > out.ProblematicOperations[j].Count
		}
		return out.ProblematicOperations[i].Operation < out.ProblematicOperations[j].Operation
	})

	for day, n := range byDay {
		out.DailyTrends = append(out.DailyTrends, DailyCount{Date: day, Count: n})
	}
	sort.Slice(out.DailyTrends, func(i, j int) bool {
		return out.DailyTrends[i].Date < out.DailyTrends[j].Date
	})

	return out
}
