package application

import (
	"fmt"
	"strings"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

type FeedSpec struct {
	Type  marketfeed.FeedType
	Pairs []marketfeed.CurrencyPair
}

// ParseFeedSpecs parses a list of feeds in the form
// type:BASE_QUOTE,BASE_QUOTE;type2:BASE_QUOTE.
func ParseFeedSpecs(str string) ([]FeedSpec, error) {
	specs := make([]FeedSpec, 0)
	seen := make(map[marketfeed.FeedType]struct{})

	for _, item := range strings.Split(str, ";") {
		item = strings.TrimSpace(item)
		if len(item) <= 0 {
			continue
		}

		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %q, missing currency pairs", ErrInvalidFeedSpec, item)
		}

		feedType := marketfeed.FeedType(strings.ToLower(strings.TrimSpace(parts[0])))
		if len(feedType) <= 0 {
			return nil, fmt.Errorf("%w: %q, missing feed type", ErrInvalidFeedSpec, item)
		}
		if _, ok := seen[feedType]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFeedSpec, feedType)
		}

		pairs, err := marketfeed.ParseCurrencyPairs(strings.Split(parts[1], ","))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %s", ErrInvalidFeedSpec, item, err)
		}

		seen[feedType] = struct{}{}
		specs = append(specs, FeedSpec{feedType, pairs})
	}

	if len(specs) <= 0 {
		return nil, fmt.Errorf("%w: no feeds", ErrInvalidFeedSpec)
	}
	return specs, nil
}
