package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
)

// RuleInput is everything a custom rule may inspect.
type RuleInput struct {
	Config  *compliance.Config
	Contact *compliance.Contact
	Action  compliance.ActionType
	Context compliance.ActionContext
	Now     time.Time
}

// RuleEvaluator is the extension point for tenant custom rules. Rules read
// their parameters from Config.CustomRules and return no details when they
// do not apply.
type RuleEvaluator interface {
	Name() string
	Evaluate(ctx context.Context, in RuleInput) ([]compliance.ViolationDetail, error)
}

// DefaultRules returns the built-in custom rules. The frequency cap is only
// registered when a counter is available.
func DefaultRules(counter SendCounter) []RuleEvaluator {
	rules := []RuleEvaluator{
		ProhibitedContentRule{},
		StateHoursRule{},
	}
	if counter != nil {
		rules = append(rules, FrequencyCapRule{Counter: counter})
	}
	return rules
}

// ProhibitedContentRule flags SMS bodies containing any configured keyword.
type ProhibitedContentRule struct{}

func (ProhibitedContentRule) Name() string { return "prohibited_content" }

func (ProhibitedContentRule) Evaluate(_ context.Context, in RuleInput) ([]compliance.ViolationDetail, error) {
	keywords := in.Config.CustomRules.ProhibitedKeywords
	if in.Action != compliance.ActionSendSMS || len(keywords) == 0 || in.Context.MessageContent == "" {
		return nil, nil
	}

	body := strings.ToLower(in.Context.MessageContent)
	var matched []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(body, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	return []compliance.ViolationDetail{{
		Type:        compliance.ViolationProhibitedContent,
		Description: fmt.Sprintf("Message contains prohibited content: %s", strings.Join(matched, ", ")),
		Severity:    compliance.SeverityWarning,
	}}, nil
}

// StateHoursRule applies stricter calling hours for the contact's state.
type StateHoursRule struct{}

func (StateHoursRule) Name() string { return "state_hours" }

func (StateHoursRule) Evaluate(_ context.Context, in RuleInput) ([]compliance.ViolationDetail, error) {
	if in.Context.ScheduledTime == nil || in.Contact == nil || in.Contact.State == "" {
		return nil, nil
	}
	window, ok := in.Config.CustomRules.StateHours[strings.ToUpper(in.Contact.State)]
	if !ok {
		return nil, nil
	}

	loc, tz := compliance.ResolveLocation(in.Config.Timezone)
	local := in.Context.ScheduledTime.In(loc)
	if window.Contains(local.Hour()) {
		return nil, nil
	}

	return []compliance.ViolationDetail{{
		Type: compliance.ViolationStateRestriction,
		Description: fmt.Sprintf("Scheduled time %02d:%02d is outside %s calling hours (%02d:00-%02d:00 %s)",
			local.Hour(), local.Minute(), strings.ToUpper(in.Contact.State), window.StartHour, window.EndHour, tz),
		Severity: compliance.SeverityWarning,
	}}, nil
}

// FrequencyCapRule limits messages per contact per tenant-local day.
type FrequencyCapRule struct {
	Counter SendCounter
}

func (FrequencyCapRule) Name() string { return "frequency_cap" }

func (r FrequencyCapRule) Evaluate(ctx context.Context, in RuleInput) ([]compliance.ViolationDetail, error) {
	limit := in.Config.CustomRules.MaxMessagesPerDay
	if limit <= 0 || in.Contact == nil {
		return nil, nil
	}

	count, err := r.Counter.Count(ctx, in.Config.TenantID, in.Contact.ID, LocalDay(in.Config.Timezone, in.Now))
	if err != nil {
		return nil, fmt.Errorf("reading send count: %w", err)
	}
	if count < int64(limit) {
		return nil, nil
	}

	return []compliance.ViolationDetail{{
		Type:        compliance.ViolationFrequencyLimit,
		Description: fmt.Sprintf("Contact already received %d of %d allowed messages today", count, limit),
		Severity:    compliance.SeverityWarning,
	}}, nil
}

// LocalDay formats at as the tenant-local calendar date used for send counters.
func LocalDay(timezone string, at time.Time) string {
	loc, _ := compliance.ResolveLocation(timezone)
	return at.In(loc).Format("2006-01-02")
}
