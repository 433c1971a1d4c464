package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
)

func TestProhibitedContentRule(t *testing.T) {
	cfg := compliance.DefaultConfig(uuid.New(), fixedNow)
	cfg.CustomRules.ProhibitedKeywords = []string{"free money", " ", "winner"}

	tests := []struct {
		name    string
		action  compliance.ActionType
		message string
		want    string
	}{
		{"no match", compliance.ActionSendSMS, "Your showing is confirmed", ""},
		{"case insensitive", compliance.ActionSendSMS, "FREE MONEY inside", "Message contains prohibited content: free money"},
		{"multiple", compliance.ActionSendSMS, "winner of free money", "Message contains prohibited content: free money, winner"},
		{"calls ignored", compliance.ActionMakeCall, "free money", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details, err := ProhibitedContentRule{}.Evaluate(context.Background(), RuleInput{
				Config:  cfg,
				Action:  tt.action,
				Context: compliance.ActionContext{MessageContent: tt.message},
			})
			require.NoError(t, err)
			if tt.want == "" {
				assert.Empty(t, details)
				return
			}
			require.Len(t, details, 1)
			assert.Equal(t, compliance.ViolationProhibitedContent, details[0].Type)
			assert.Equal(t, tt.want, details[0].Description)
		})
	}
}

func TestStateHoursRule(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	cfg := compliance.DefaultConfig(uuid.New(), fixedNow)
	cfg.CustomRules.StateHours = map[string]compliance.HourWindow{
		"FL": {StartHour: 8, EndHour: 20},
	}

	tests := []struct {
		name  string
		state string
		at    time.Time
		want  bool
	}{
		{"inside state window", "FL", time.Date(2026, 6, 10, 19, 59, 0, 0, loc), false},
		{"outside state window", "fl", time.Date(2026, 6, 10, 20, 0, 0, 0, loc), true},
		{"state without rule", "NY", time.Date(2026, 6, 10, 20, 30, 0, 0, loc), false},
		{"no state", "", time.Date(2026, 6, 10, 20, 30, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			details, err := StateHoursRule{}.Evaluate(context.Background(), RuleInput{
				Config:  cfg,
				Contact: &compliance.Contact{State: tt.state},
				Action:  compliance.ActionMakeCall,
				Context: compliance.ActionContext{ScheduledTime: &at},
			})
			require.NoError(t, err)
			if !tt.want {
				assert.Empty(t, details)
				return
			}
			require.Len(t, details, 1)
			assert.Equal(t, compliance.ViolationStateRestriction, details[0].Type)
			assert.Equal(t, "Scheduled time 20:00 is outside FL calling hours (08:00-20:00 America/New_York)", details[0].Description)
		})
	}
}

func TestFrequencyCapRule(t *testing.T) {
	ctx := context.Background()
	tenantID, contactID := uuid.New(), uuid.New()
	cfg := compliance.DefaultConfig(tenantID, fixedNow)
	contact := &compliance.Contact{ID: contactID, TenantID: tenantID}

	t.Run("disabled without a limit", func(t *testing.T) {
		counter := new(MockSendCounter)
		details, err := FrequencyCapRule{Counter: counter}.Evaluate(ctx, RuleInput{Config: cfg, Contact: contact, Now: fixedNow})
		require.NoError(t, err)
		assert.Empty(t, details)
		counter.AssertNotCalled(t, "Count")
	})

	limited := *cfg
	limited.CustomRules.MaxMessagesPerDay = 2

	t.Run("under the cap", func(t *testing.T) {
		counter := new(MockSendCounter)
		counter.On("Count", ctx, tenantID, contactID, "2026-06-10").Return(int64(1), nil)

		details, err := FrequencyCapRule{Counter: counter}.Evaluate(ctx, RuleInput{Config: &limited, Contact: contact, Now: fixedNow})
		require.NoError(t, err)
		assert.Empty(t, details)
	})

	t.Run("at the cap", func(t *testing.T) {
		counter := new(MockSendCounter)
		counter.On("Count", ctx, tenantID, contactID, "2026-06-10").Return(int64(2), nil)

		details, err := FrequencyCapRule{Counter: counter}.Evaluate(ctx, RuleInput{Config: &limited, Contact: contact, Now: fixedNow})
		require.NoError(t, err)
		require.Len(t, details, 1)
		assert.Equal(t, compliance.ViolationFrequencyLimit, details[0].Type)
		assert.Equal(t, "Contact already received 2 of 2 allowed messages today", details[0].Description)
	})
}

func TestLocalDay(t *testing.T) {
	// 02:30 UTC is still the previous evening in New York
	at := time.Date(2026, 6, 11, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-06-10", LocalDay("America/New_York", at))
	assert.Equal(t, "2026-06-11", LocalDay("Not/AZone", at))
}

func TestDefaultRules(t *testing.T) {
	assert.Len(t, DefaultRules(nil), 2)
	assert.Len(t, DefaultRules(new(MockSendCounter)), 3)
}
