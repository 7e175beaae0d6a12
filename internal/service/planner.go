package service

import "github.com/notifyhub/campaign-push/internal/domain"

// BuildBatches selects candidates first-fit under budget and groups the
// selected channels by their exact admin set.
//
// Candidates are visited in the given order (ascending publisher id from the
// repository). A channel is taken only if it keeps the running total within
// budget; a skipped channel is not reconsidered in the same call. Groups are
// returned in the order their admin set was first seen, so the same input
// always yields the same plans.
func BuildBatches(candidates []domain.Publisher, budget int) []domain.BatchPlan {
	var plans []domain.BatchPlan
	index := make(map[string]int)
	used := 0

	for _, c := range candidates {
		ve := c.Channel.ViewEfficiency
		if used+ve > budget {
			continue
		}
		used += ve

		key := domain.AdminKey(c.Channel.AdminIDs)
		i, ok := index[key]
		if !ok {
			i = len(plans)
			index[key] = i
			plans = append(plans, domain.BatchPlan{AdminIDs: domain.SortedAdmins(c.Channel.AdminIDs)})
		}
		plans[i].Channels = append(plans[i].Channels, c)
	}
	return plans
}
