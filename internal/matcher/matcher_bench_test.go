package matcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/freewebtopdf/logfilters/internal/cache"
	"github.com/freewebtopdf/logfilters/internal/domain"
)

var benchLines = []string{
	"2024-05-01 12:00:00 INFO request served in 12ms",
	"2024-05-01 12:00:01 WARN slow query on users table",
	"2024-05-01 12:00:02 ERROR disk /dev/sda1 is full",
	"2024-05-01 12:00:03 DEBUG cache refreshed",
}

func benchMatcher(b *testing.B, extra int) *Matcher {
	b.Helper()
	rules := make([]domain.Rule, 0, extra+3)
	for i := 0; i < extra; i++ {
		rules = append(rules, styled(fmt.Sprintf(`^never-%d\s`, i), "black", "white"))
	}
	rules = append(rules,
		styled(`\bERROR\b`, "white", "red"),
		styled(`WARN`, "black", "yellow"),
		styled(`ms$`, "grey", "white"),
	)

	m := NewMatcher(&mockProvider{rules: rules}, cache.NewLRUCache(10000))
	if err := m.LoadRules(context.Background()); err != nil {
		b.Fatal(err)
	}
	return m
}

func BenchmarkResolve_Cached(b *testing.B) {
	m := benchMatcher(b, 10)
	ctx := context.Background()
	for _, line := range benchLines {
		_, _ = m.Resolve(ctx, line)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Resolve(ctx, benchLines[i%3]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolve_Uncached(b *testing.B) {
	for _, extra := range []int{0, 100, 1000} {
		b.Run(fmt.Sprintf("rules=%d", extra+3), func(b *testing.B) {
			m := benchMatcher(b, extra)
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				line := fmt.Sprintf("%s #%d", benchLines[i%len(benchLines)], i)
				if _, err := m.Resolve(ctx, line); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkResolve_Parallel(b *testing.B) {
	m := benchMatcher(b, 100)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := m.Resolve(ctx, benchLines[i%len(benchLines)]); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})

	stats := m.cache.Stats()
	if stats.Hits+stats.Misses > 0 {
		b.ReportMetric(float64(stats.Hits)/float64(stats.Hits+stats.Misses)*100, "hit%")
	}
}

func BenchmarkRuleList_Match(b *testing.B) {
	list := NewRuleList(
		styled(`\bERROR\b`, "white", "red"),
		styled(`WARN`, "black", "yellow"),
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		list.Match(benchLines[i%len(benchLines)])
	}
}
