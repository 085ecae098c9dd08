package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/anemwatch/browser/browsertest"
	"github.com/aluiziolira/anemwatch/config"
	"github.com/aluiziolira/anemwatch/models"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ReadyTimeout = 40 * time.Millisecond
	cfg.SettleTimeout = 20 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	return cfg
}

func landingPage(text, state string) *browsertest.Page {
	page := browsertest.NewPage()
	page.Load("https://minha.anem.dz/rendezvous", text, state)
	return page
}

func TestDetect(t *testing.T) {
	phrase := config.DefaultSite().NoSlotsPhrase

	tests := []struct {
		name   string
		page   func() *browsertest.Page
		want   models.DetectionResult
		reason string
	}{
		{
			name: "phrase present",
			page: func() *browsertest.Page { return landingPage("header\n"+phrase+"\nfooter", "complete") },
			want: models.DetectionNoSlots,
		},
		{
			name: "phrase reflowed across lines",
			page: func() *browsertest.Page {
				return landingPage("نعتذر منكم !\n لا يوجد أي موعد متاح حاليا.", "complete")
			},
			want: models.DetectionNoSlots,
		},
		{
			name: "phrase absent",
			page: func() *browsertest.Page { return landingPage("اختر موعدا", "complete") },
			want: models.DetectionSlotsAvailable,
		},
		{
			name: "phrase without final dot",
			page: func() *browsertest.Page {
				return landingPage("نعتذر منكم ! لا يوجد أي موعد متاح حاليا", "complete")
			},
			want: models.DetectionSlotsAvailable,
		},
		{
			name:   "empty body",
			page:   func() *browsertest.Page { return landingPage(" \n ", "complete") },
			want:   models.DetectionIndeterminate,
			reason: "page has no text",
		},
		{
			name:   "never ready",
			page:   func() *browsertest.Page { return landingPage(phrase, "loading") },
			want:   models.DetectionIndeterminate,
			reason: "page not ready",
		},
		{
			name: "still on form",
			page: func() *browsertest.Page {
				p := landingPage("التسجيل المسبق", "complete")
				p.SetElement(config.DefaultSite().WassitSelector, browsertest.Element{Present: true, Clickable: true})
				return p
			},
			want:   models.DetectionIndeterminate,
			reason: "still on the form page",
		},
		{
			name: "text unreadable",
			page: func() *browsertest.Page {
				p := landingPage(phrase, "complete")
				p.TextErr = errors.New("target closed")
				return p
			},
			want:   models.DetectionIndeterminate,
			reason: "read page text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(testConfig(), nil).Detect(context.Background(), tt.page())
			assert.Equal(t, tt.want, got.Result)
			if tt.reason != "" {
				assert.Contains(t, got.Reason, tt.reason)
			}
			assert.Equal(t, "https://minha.anem.dz/rendezvous", got.URL)
		})
	}
}

func TestDetectWaitsForLateText(t *testing.T) {
	cfg := testConfig()
	cfg.SettleTimeout = time.Second
	page := landingPage("جار التحميل", "complete")
	go func() {
		time.Sleep(20 * time.Millisecond)
		page.SetText(cfg.Site.NoSlotsPhrase)
	}()

	got := New(cfg, nil).Detect(context.Background(), page)
	assert.Equal(t, models.DetectionNoSlots, got.Result)
}

func TestDetectIsIdempotent(t *testing.T) {
	page := landingPage("اختر موعدا", "complete")
	d := New(testConfig(), nil)

	first := d.Detect(context.Background(), page)
	second := d.Detect(context.Background(), page)
	require.Equal(t, first, second)
}

func TestDetectCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := New(testConfig(), nil).Detect(ctx, landingPage("x", "complete"))
	assert.Equal(t, models.DetectionIndeterminate, got.Result)
}

func TestErrIndeterminateText(t *testing.T) {
	err := ErrIndeterminate{Reason: "page has no text"}
	assert.Equal(t, "indeterminate: page has no text", err.Error())
}
