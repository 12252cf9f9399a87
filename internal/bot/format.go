package bot

import (
	"fmt"
	"strings"

	"statusbot/internal/activity"
	"statusbot/internal/eligibility"
	"statusbot/internal/job"
	"statusbot/internal/model"
)

const dateLayout = "2006-01-02 15:04 UTC"

// FormatPublishResult formats the outcome of a publish attempt as a
// Telegram notification.
func FormatPublishResult(name string, res *job.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", name)
	switch res.Outcome {
	case job.OutcomePublished:
		b.WriteString("Published on Twitter.")
		if res.Status != nil && res.Status.URL != "" {
			b.WriteString("\n")
			b.WriteString(res.Status.URL)
		}
	case job.OutcomeRejected:
		b.WriteString("Rejected: ")
		b.WriteString(res.Verdict.Message)
	case job.OutcomeExternalError:
		b.WriteString("Twitter could not be reached, the status stays scheduled and will be retried.")
		if res.Err != nil {
			fmt.Fprintf(&b, "\nError: %v", res.Err)
		}
	default:
		b.WriteString(res.Outcome)
	}
	return b.String()
}

// FormatVerdict formats the result of a dry-run check.
func FormatVerdict(id int64, v eligibility.Verdict) string {
	if v.OK {
		return fmt.Sprintf("#%d can be published.", id)
	}
	return fmt.Sprintf("#%d cannot be published: %s", id, v.Message)
}

// FormatCampaignList formats the campaigns of a chat.
func FormatCampaignList(campaigns []model.Campaign) string {
	if len(campaigns) == 0 {
		return "You have no campaigns yet. Use /campaign <name> to add one."
	}
	var b strings.Builder
	b.WriteString("Your campaigns:\n")
	for _, c := range campaigns {
		fmt.Fprintf(&b, "\n#%d %s  (%s)\n", c.ID, c.Name, intervalLabel(c.Interval))
	}
	return b.String()
}

// FormatLocationList formats the Twitter accounts of a chat.
func FormatLocationList(locations []model.Location) string {
	if len(locations) == 0 {
		return "You have no accounts yet. Use /account <username> to add one."
	}
	var b strings.Builder
	b.WriteString("Your accounts:\n")
	for _, l := range locations {
		fmt.Fprintf(&b, "\n@%s", l.Username)
		if l.Name != "" && l.Name != l.Username {
			fmt.Fprintf(&b, " (%s)", l.Name)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// FormatActivityList formats the activities of a chat.
func FormatActivityList(activities []model.Activity) string {
	if len(activities) == 0 {
		return "You have no status updates yet. Use /new to schedule one."
	}
	var b strings.Builder
	b.WriteString("Your status updates:\n")
	for _, a := range activities {
		fmt.Fprintf(&b, "\n#%d %s  [%s]\n", a.ID, a.Name, a.State)
		fmt.Fprintf(&b, "   %s", a.StartDate.UTC().Format(dateLayout))
		if a.Location != nil {
			fmt.Fprintf(&b, " as @%s", a.Location.Username)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatActivityInfo formats a status update with its activity details.
func FormatActivityInfo(st *model.Status) string {
	a := st.Operation.Activity
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]\n", a.ID, a.Name, a.State)
	if a.Location != nil {
		fmt.Fprintf(&b, "Account: @%s\n", a.Location.Username)
	}
	if a.Campaign != nil {
		fmt.Fprintf(&b, "Campaign: #%d %s (%s)\n", a.Campaign.ID, a.Campaign.Name, intervalLabel(a.Campaign.Interval))
	}
	fmt.Fprintf(&b, "Start: %s\n", a.StartDate.UTC().Format(dateLayout))
	if st.PublishedAt != nil {
		fmt.Fprintf(&b, "Published: %s\n", st.PublishedAt.UTC().Format(dateLayout))
	}
	if st.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", st.URL)
	}
	if a.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", a.LastError)
	}
	b.WriteString("\n")
	b.WriteString(st.Message)
	return b.String()
}

// FormatView formats a published status for /view.
func FormatView(v *activity.View) string {
	var b strings.Builder
	if v.Message != "" {
		b.WriteString(v.Message)
		b.WriteString("\n\n")
	}
	b.WriteString(v.Status.Message)
	if v.Status.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(v.Status.URL)
	}
	return b.String()
}

func intervalLabel(interval string) string {
	if interval == "" {
		return "no repeat"
	}
	return "every " + strings.TrimLeft(interval, "+")
}
