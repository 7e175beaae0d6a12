package service_test

import (
	"context"
	"testing"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/repository"
)

func partialPost(assignmentID, contentID int64, views int) repository.MockPost {
	return repository.MockPost{
		AssignmentID: assignmentID,
		ViewType:     domain.ViewPartial,
		Enabled:      true,
		Views:        domain.PostViews{ContentID: contentID, ContentText: "banner", Views: &views},
	}
}

func TestViewCloser_CloseReached(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 100))
	f.store.AddCampaign(activeCampaign(2, 100))
	f.store.AddAssignment(domain.Assignment{ID: 1, CampaignID: 1, UserID: 1})
	f.store.AddAssignment(domain.Assignment{ID: 2, CampaignID: 2, UserID: 1})
	f.store.AddPost(partialPost(1, 10, 60))
	f.store.AddPost(partialPost(1, 10, 40))
	f.store.AddPost(partialPost(2, 20, 99))
	disabledPost := partialPost(2, 20, 500)
	disabledPost.Enabled = false
	f.store.AddPost(disabledPost)

	ids, err := f.closer.CloseReached(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected campaign 1 disabled, got %v", ids)
	}
	c, _ := f.store.GetCampaign(ctx, 1)
	if c.Enabled {
		t.Fatal("campaign 1 should be disabled")
	}
	c, _ = f.store.GetCampaign(ctx, 2)
	if !c.Enabled {
		t.Fatal("campaign 2 should stay enabled")
	}

	// A disabled campaign is not checked again.
	ids, _ = f.closer.CloseReached(ctx)
	if len(ids) != 0 {
		t.Fatalf("expected nothing on the second run, got %v", ids)
	}
}

func TestViewCloser_Report(t *testing.T) {
	f := newFixture()
	f.store.AddCampaign(activeCampaign(1, 100))
	f.store.AddAssignment(domain.Assignment{ID: 1, CampaignID: 1, UserID: 1})
	f.store.AddPost(partialPost(1, 10, 30))
	f.store.AddPost(partialPost(1, 11, 50))

	rep, err := f.closer.Report(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Reached || len(rep.Contents) != 2 || rep.Contents[1].Views != 50 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	if _, err := f.closer.Report(context.Background(), 9); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
