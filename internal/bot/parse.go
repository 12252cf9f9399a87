package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"statusbot/internal/activity"
	"statusbot/internal/reltime"
)

var whenLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("ID is required")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.Fields(s)[0], "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// ParseCampaignArgs extracts a campaign name and an optional repeat interval.
// Format: <name> [| <interval>]
func ParseCampaignArgs(args string) (string, string, error) {
	parts := splitFields(args)
	if len(parts) == 0 || parts[0] == "" {
		return "", "", fmt.Errorf("usage: /campaign <name> [| <interval>]")
	}
	var interval string
	if len(parts) > 1 {
		var err error
		if interval, err = normalizeInterval(parts[1]); err != nil {
			return "", "", err
		}
	}
	return parts[0], interval, nil
}

// ParseIntervalArgs extracts a campaign ID and its new repeat interval.
// "none" clears the interval.
func ParseIntervalArgs(args string) (int64, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("usage: /interval <campaign_id> <interval|none>")
	}
	id, err := ParseIDArg(parts[0])
	if err != nil {
		return 0, "", err
	}
	interval, err := normalizeInterval(parts[1])
	if err != nil {
		return 0, "", err
	}
	return id, interval, nil
}

// ParseAccountArgs extracts a Twitter username and an optional display name.
func ParseAccountArgs(args string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	username := strings.TrimPrefix(parts[0], "@")
	if username == "" {
		return "", "", fmt.Errorf("usage: /account <username> [name]")
	}
	name := username
	if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
		name = strings.TrimSpace(parts[1])
	}
	return username, name, nil
}

// ParseWhen interprets a start date. An empty value leaves the date unset,
// "now" requests immediate publication, "+2 hours" is relative to now and
// absolute dates are read in UTC.
func ParseWhen(s string, now time.Time) (time.Time, string, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", activity.ExecuteLater:
		return time.Time{}, activity.ExecuteLater, nil
	case activity.ExecuteNow:
		return time.Time{}, activity.ExecuteNow, nil
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		offset, err := reltime.Parse(s)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("invalid start %q: %w", s, err)
		}
		return offset.From(now).UTC(), activity.ExecuteLater, nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, activity.ExecuteLater, nil
		}
	}
	return time.Time{}, "", fmt.Errorf("invalid start %q, use now, +2 hours or 2006-01-02 15:04", s)
}

// ParseNewArgs parses the arguments of /new.
// Format: <username> | <name> | <message> [| <when>] [| <campaign_id>]
func ParseNewArgs(args string, now time.Time) (activity.Input, error) {
	parts := splitFields(args)
	if len(parts) < 3 {
		return activity.Input{}, fmt.Errorf("usage: /new <username> | <name> | <message> [| <when>] [| <campaign_id>]")
	}
	in := activity.Input{
		Username: strings.TrimPrefix(parts[0], "@"),
		Name:     parts[1],
		Message:  parts[2],
	}
	if len(parts) > 3 {
		start, choice, err := ParseWhen(parts[3], now)
		if err != nil {
			return activity.Input{}, err
		}
		in.StartDate, in.ExecutionChoice = start, choice
	}
	if len(parts) > 4 && parts[4] != "" {
		id, err := ParseIDArg(parts[4])
		if err != nil {
			return activity.Input{}, fmt.Errorf("invalid campaign ID %q", parts[4])
		}
		in.CampaignID = id
	}
	return in, nil
}

// ParseEditArgs parses the arguments of /edit. Empty fields keep their
// current value.
// Format: <id> | <message> [| <when>]
func ParseEditArgs(args string, now time.Time) (int64, activity.Input, error) {
	parts := splitFields(args)
	if len(parts) < 2 {
		return 0, activity.Input{}, fmt.Errorf("usage: /edit <id> | <message> [| <when>]")
	}
	id, err := ParseIDArg(parts[0])
	if err != nil {
		return 0, activity.Input{}, err
	}
	in := activity.Input{Message: parts[1]}
	if len(parts) > 2 {
		start, choice, err := ParseWhen(parts[2], now)
		if err != nil {
			return 0, activity.Input{}, err
		}
		in.StartDate, in.ExecutionChoice = start, choice
	}
	return id, in, nil
}

func splitFields(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func normalizeInterval(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return "", nil
	}
	offset, err := reltime.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid interval %q: %w", s, err)
	}
	return offset.String(), nil
}
