package eligibility

import (
	"fmt"
	"strings"

	"statusbot/internal/model"
	"statusbot/internal/reltime"
)

// IsExecutableInCampaign checks the campaign of the status' activity.
// A status without a campaign has nothing to conflict with; a status that
// is not attached to an activity fails.
func (e *Evaluator) IsExecutableInCampaign(s *model.Status) Verdict {
	activity, err := activityOf(s)
	if err != nil {
		e.record(CheckCampaign, OutcomeError)
		return Fail("The status is not attached to an activity.")
	}
	if activity.Campaign == nil {
		e.record(CheckCampaign, OutcomeSkipped)
		return Pass()
	}
	return e.CheckCampaign(activity.Campaign)
}

// CheckCampaign rejects campaigns that repeat more often than the duplicate
// window allows.
func (e *Evaluator) CheckCampaign(c *model.Campaign) Verdict {
	if c == nil || strings.TrimSpace(c.Interval) == "" {
		e.record(CheckCampaign, OutcomeSkipped)
		return Pass()
	}

	interval, err := reltime.Parse(c.Interval)
	if err != nil {
		e.record(CheckCampaign, OutcomeFail)
		return Fail(fmt.Sprintf("The campaign interval %q cannot be interpreted: %v.", c.Interval, err))
	}

	now := e.clock.Now().UTC()
	campaignDate := interval.From(now)
	duplicateDate := e.maxDuplicate.From(now)

	if duplicateDate.After(campaignDate) {
		e.record(CheckCampaign, OutcomeFail)
		return Fail(fmt.Sprintf(
			"The campaign interval must be more than %s to avoid a duplicate Tweet error (%s).",
			e.maxDuplicate.Human(), duplicateTweetsURL,
		))
	}

	e.record(CheckCampaign, OutcomePass)
	return Pass()
}
