package domain

// ConfirmedViews sums view efficiency over channels already serving a campaign.
func ConfirmedViews(confirmed []Channel) int {
	return SumViewEfficiency(confirmed)
}

// VoidViews sums view efficiency over the channels of outstanding pushes.
// These are counted as claimed capacity until the admins respond or the push
// expires, so the campaign is not over-solicited in the meantime.
func VoidViews(pushes []*Push) int {
	total := 0
	for _, p := range pushes {
		if !p.Status.Outstanding() {
			continue
		}
		total += SumViewEfficiency(p.Channels)
	}
	return total
}

// RemainingViews returns max(0, maxView - confirmed - void).
func RemainingViews(maxView, confirmed, void int) int {
	remaining := maxView - confirmed - void
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ViewType distinguishes content whose views are counted per post (partial)
// from content counted once for the whole campaign (total).
type ViewType string

const (
	ViewTotal   ViewType = "total"
	ViewPartial ViewType = "partial"
)

// PostViews is one enabled campaign post with the data needed to resolve its
// view count.
type PostViews struct {
	PostID      int64
	ContentID   int64
	ContentText string
	// Views is the operator-entered count; nil when not entered.
	Views *int
	// LastLogViews is banner_views of the most recent view log; nil when the
	// post has no logs.
	LastLogViews *int
}

// Resolve returns the post's views: the Views field if set, else the last
// log's banner views, else 0.
func (p PostViews) Resolve() int {
	if p.Views != nil {
		return *p.Views
	}
	if p.LastLogViews != nil {
		return *p.LastLogViews
	}
	return 0
}

// ContentViews is the aggregated view count of one campaign content.
type ContentViews struct {
	ContentID int64  `json:"content"`
	Text      string `json:"display_text"`
	Views     int    `json:"views"`
}

// SumContentViews aggregates resolved post views per content, ordered by the
// first appearance of each content in posts.
func SumContentViews(posts []PostViews) []ContentViews {
	index := make(map[int64]int)
	var out []ContentViews
	for _, p := range posts {
		i, ok := index[p.ContentID]
		if !ok {
			i = len(out)
			index[p.ContentID] = i
			out = append(out, ContentViews{ContentID: p.ContentID, Text: p.ContentText})
		}
		out[i].Views += p.Resolve()
	}
	return out
}

// ReachedMaxView reports whether any content's views are at or above maxView.
func ReachedMaxView(contents []ContentViews, maxView int) bool {
	for _, c := range contents {
		if c.Views >= maxView {
			return true
		}
	}
	return false
}
