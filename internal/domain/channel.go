package domain

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultViewEfficiency is the expected impression count of a channel with no
// measured efficiency.
const DefaultViewEfficiency = 1000

// Channel is a Telegram channel acting as an ad-inventory unit.
type Channel struct {
	ID             int64   `json:"id"`
	Tag            string  `json:"tag"`
	Title          string  `json:"title"`
	TelegramID     *int64  `json:"channel_id,omitempty"`
	MemberCount    *int    `json:"member_no,omitempty"`
	ViewEfficiency int     `json:"view_efficiency"`
	PayoutAccount  string  `json:"sheba_number"`
	AdminIDs       []int64 `json:"admins"`
}

// Publisher is a channel in a campaign's publisher set with its agreed tariff.
// ID is the publisher row id and defines the candidate order.
type Publisher struct {
	ID         int64   `json:"id"`
	CampaignID int64   `json:"campaign_id"`
	Channel    Channel `json:"channel"`
	Tariff     int     `json:"tariff"`
}

// SumViewEfficiency returns the total expected impressions of channels.
func SumViewEfficiency(channels []Channel) int {
	total := 0
	for _, ch := range channels {
		total += ch.ViewEfficiency
	}
	return total
}

// AdminKey returns a canonical key for an admin set: sorted, de-duplicated ids
// joined by commas. Two channels with the same admins share a key regardless
// of the order their admins were loaded in.
func AdminKey(ids []int64) string {
	sorted := SortedAdmins(ids)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// SortedAdmins returns a sorted copy of ids with duplicates removed.
func SortedAdmins(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FilterCandidates drops publishers whose channel is already confirmed or
// already has a push of any status, and orders the rest by ascending
// publisher id.
func FilterCandidates(publishers []Publisher, confirmed, pushed map[int64]bool) []Publisher {
	out := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if confirmed[p.Channel.ID] || pushed[p.Channel.ID] {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
