package feed

import (
	"context"
	"strings"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// FilterSymbols restricts a Handler to the given contracts. The `!all`
// subscription streams every listed contract; an operator who only wants a
// handful configures them here. An empty list passes everything through
// unchanged. Matching is case-insensitive on the contract name.
func FilterSymbols(symbols []string, next Handler) Handler {
	if len(symbols) == 0 {
		return next
	}
	allowed := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		allowed[s] = struct{}{}
	}
	if len(allowed) == 0 {
		return next
	}
	return func(ctx context.Context, sample domain.SpreadSample) {
		if _, ok := allowed[strings.ToUpper(sample.Symbol)]; !ok {
			return
		}
		next(ctx, sample)
	}
}
