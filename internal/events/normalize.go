package events

import (
	"strings"

	"github.com/campaignkit/dispatch-service/internal/domain"
)

// kindAliases maps every provider event spelling we have observed to its
// canonical bucket. Lookup is case-insensitive.
var kindAliases = map[string]domain.EventKind{
	"request":      domain.KindRequests,
	"requests":     domain.KindRequests,
	"delivered":    domain.KindDelivered,
	"open":         domain.KindOpened,
	"opened":       domain.KindOpened,
	"click":        domain.KindClicks,
	"clicks":       domain.KindClicks,
	"hard_bounce":  domain.KindHardBounces,
	"hardbounce":   domain.KindHardBounces,
	"hardbounces":  domain.KindHardBounces,
	"soft_bounce":  domain.KindSoftBounces,
	"softbounce":   domain.KindSoftBounces,
	"softbounces":  domain.KindSoftBounces,
	"blocked":      domain.KindBlocked,
	"spam":         domain.KindSpam,
	"deferred":     domain.KindDeferred,
	"unsubscribed": domain.KindUnsubscribed,
	"unsubscribe":  domain.KindUnsubscribed,
	"error":        domain.KindError,
}

// NormalizeKind maps a raw provider event name to its canonical kind. A name
// we have never seen passes through verbatim as its own bucket so novel
// provider vocabulary surfaces in reports instead of disappearing.
func NormalizeKind(raw string) domain.EventKind {
	if kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return kind
	}
	return domain.EventKind(raw)
}
