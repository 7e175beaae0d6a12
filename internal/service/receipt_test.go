package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/notifyhub/campaign-push/internal/domain"
)

func seedAssignment(f *fixture) {
	f.store.AddCampaign(activeCampaign(1, 1000))
	f.addChannel(1, 1, 100, 1)
	f.addChannel(1, 2, 100, 1)
	f.store.AddAssignment(domain.Assignment{ID: 7, CampaignID: 1, UserID: 1, ChannelIDs: []int64{1, 2}})
}

func TestReceiptService_Validation(t *testing.T) {
	f := newFixture()
	seedAssignment(f)
	day := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		price int
		date  time.Time
	}{
		{"zero price", 0, day},
		{"negative price", -5, day},
		{"missing date", 100, time.Time{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.receipts.Record(context.Background(), 7, tc.price, tc.date); !errors.Is(err, domain.ErrInvalidReceipt) {
				t.Fatalf("expected ErrInvalidReceipt, got %v", err)
			}
		})
	}
	if len(f.msg.Sent()) != 0 {
		t.Fatal("invalid receipts must not notify")
	}
}

func TestReceiptService_NotifiesOnDateChange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAssignment(f)
	day := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	a, err := f.receipts.Record(ctx, 7, 25000, day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *a.ReceiptPrice != 25000 || !a.Paid() {
		t.Fatalf("receipt not stored: %+v", a)
	}
	sent := f.msg.Sent()
	if len(sent) != 1 || sent[0].ChatID != 100 {
		t.Fatalf("expected one paid message to chat 100, got %+v", sent)
	}
	if !strings.Contains(sent[0].Text, "@chan1, @chan2") || !strings.Contains(sent[0].Text, "25000") {
		t.Fatalf("unexpected paid text: %q", sent[0].Text)
	}

	// Same day, corrected price: stored without a second message.
	if _, err := f.receipts.Record(ctx, 7, 26000, day.Add(3*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if len(f.msg.Sent()) != 1 {
		t.Fatal("an unchanged receipt date must not notify again")
	}
	stored, _ := f.store.GetAssignment(ctx, 7)
	if *stored.ReceiptPrice != 26000 {
		t.Fatalf("expected price 26000, got %d", *stored.ReceiptPrice)
	}

	if _, err := f.receipts.Record(ctx, 7, 26000, day.AddDate(0, 0, 1)); err != nil {
		t.Fatal(err)
	}
	if len(f.msg.Sent()) != 2 {
		t.Fatal("a new receipt date must notify")
	}
}

func TestReceiptService_SendFailureDoesNotFail(t *testing.T) {
	f := newFixture()
	seedAssignment(f)
	f.msg.FailChats[100] = true

	a, err := f.receipts.Record(context.Background(), 7, 100, now)
	if err != nil {
		t.Fatalf("send failure must not fail the call: %v", err)
	}
	if !a.Paid() {
		t.Fatal("receipt should still be stored")
	}
}

func TestReceiptService_UnknownAssignment(t *testing.T) {
	f := newFixture()
	if _, err := f.receipts.Record(context.Background(), 404, 100, now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
