package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
	"github.com/payraan/narmoonai-test-sub000/internal/service"
)

func referralReply(err error) string {
	switch {
	case err == nil:
		return "You joined through a friend's invite. Welcome!"
	case errors.Is(err, service.ErrInvalidCode):
		return "This invite link is not valid."
	case errors.Is(err, service.ErrSelfReferral):
		return "You cannot use your own invite link."
	case errors.Is(err, service.ErrAlreadyReferred):
		return "You have already joined through an invite."
	default:
		return ""
	}
}

func formatPlanLine(p models.PlanDefinition, currency string) string {
	line := fmt.Sprintf("%s: %.2f %s, %d/month, %d/hour", p.DisplayName, p.Price, currency, p.MonthlyLimit, p.HourlyLimit)
	if p.VIPAccess {
		line += ", VIP"
	}
	return line
}

func formatPlanStatus(status *service.PlanStatus, usage *service.UsageSnapshot, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var sb strings.Builder
	switch status.State {
	case models.PlanStateFree:
		sb.WriteString("You have no active plan. Use /plans to pick one.")
		return sb.String()
	case models.PlanStateExpired:
		fmt.Fprintf(&sb, "Your %s plan expired on %s. Use /plans to renew.", status.PlanType, status.PlanEnd.In(loc).Format("2006-01-02 15:04"))
		return sb.String()
	}

	fmt.Fprintf(&sb, "Plan: %s\n", status.PlanType)
	if status.PlanEnd != nil {
		fmt.Fprintf(&sb, "Valid until: %s\n", status.PlanEnd.In(loc).Format("2006-01-02 15:04"))
	} else {
		sb.WriteString("Valid until: no expiry\n")
	}
	if usage != nil {
		fmt.Fprintf(&sb, "This month: %d/%d\n", usage.MonthlyUsed, usage.MonthlyLimit)
		fmt.Fprintf(&sb, "This hour: %d/%d", usage.HourlyUsed, usage.HourlyLimit)
	}
	if status.VIPAccess {
		sb.WriteString("\nVIP access: yes")
	}
	return sb.String()
}

func referralLink(botUsername, code string) string {
	if botUsername == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, code)
}

func formatReferral(botUsername, code string, stats *service.ReferralStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your referral code: %s\n", code)
	if link := referralLink(botUsername, code); link != "" {
		fmt.Fprintf(&sb, "Invite link: %s\n", link)
	}
	if stats != nil {
		fmt.Fprintf(&sb, "\nInvited: %d (%d purchased)\n", stats.Total, stats.Completed)
		fmt.Fprintf(&sb, "Earned: %.2f\nPaid out: %.2f\nAwaiting payout: %.2f", stats.TotalEarned, stats.TotalPaid, stats.PendingPayout)
	}
	return sb.String()
}
