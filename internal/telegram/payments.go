package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
	"github.com/payraan/narmoonai-test-sub000/internal/service"
)

const invoicePayloadPrefix = "plan:"

func invoicePayload(planName string) string {
	return invoicePayloadPrefix + planName
}

func parseInvoicePayload(payload string) (string, bool) {
	name, ok := strings.CutPrefix(payload, invoicePayloadPrefix)
	name = service.NormalizePlanName(name)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func (b *Bot) sendInvoice(ctx context.Context, chatID int64, planName string) {
	if b.opts.PaymentProviderToken == "" {
		b.sendText(chatID, "Online payments are not available yet. Please contact support to activate a plan.")
		return
	}
	plan, err := b.svc.Plans.Get(ctx, planName)
	if err != nil {
		if errors.Is(err, service.ErrPlanNotFound) {
			b.sendText(chatID, "Unknown plan. Use /plans to see what is available.")
			return
		}
		b.log.Error("get plan for invoice", "plan", planName, "err", err)
		b.sendText(chatID, "Could not prepare the invoice, please try again later.")
		return
	}

	prices := []tgbotapi.LabeledPrice{
		{
			Label:  fmt.Sprintf("%s, %d days", plan.DisplayName, b.opts.PlanDurationDays),
			Amount: plan.PriceMinorUnits(),
		},
	}
	description := fmt.Sprintf("%d analyses per month, %d per hour", plan.MonthlyLimit, plan.HourlyLimit)
	if plan.VIPAccess {
		description += ", VIP access"
	}

	invoice := tgbotapi.NewInvoice(chatID,
		plan.DisplayName,
		description,
		invoicePayload(plan.PlanName),
		b.opts.PaymentProviderToken,
		"plan",
		b.opts.Currency,
		prices,
	)
	if _, err := b.api.Send(invoice); err != nil {
		b.log.Error("send invoice", "plan", plan.PlanName, "err", err)
		b.sendText(chatID, "Could not send the invoice, please try again later.")
	}
}

// handlePreCheckout confirms the plan still exists at the invoiced price
// before Telegram charges the user.
func (b *Bot) handlePreCheckout(ctx context.Context, query *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: query.ID, OK: true}
	if reason := b.checkInvoice(ctx, query.InvoicePayload, query.Currency, query.TotalAmount); reason != "" {
		answer.OK = false
		answer.ErrorMessage = reason
	}
	if _, err := b.api.Request(answer); err != nil {
		b.log.Error("answer pre-checkout", "err", err)
	}
}

func (b *Bot) checkInvoice(ctx context.Context, payload, currency string, total int) string {
	name, ok := parseInvoicePayload(payload)
	if !ok {
		return "Unknown plan."
	}
	plan, err := b.svc.Plans.Get(ctx, name)
	if errors.Is(err, service.ErrPlanNotFound) {
		return "This plan is no longer available."
	}
	if err != nil {
		b.log.Error("get plan for pre-checkout", "plan", name, "err", err)
		return "Payments are temporarily unavailable, please try again later."
	}
	return invoiceMismatch(plan, b.opts.Currency, currency, total)
}

func invoiceMismatch(plan *models.PlanDefinition, wantCurrency, currency string, total int) string {
	if !strings.EqualFold(wantCurrency, currency) || plan.PriceMinorUnits() != total {
		return "The plan price has changed. Please request a new invoice."
	}
	return ""
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user payment", "err", err)
		return
	}
	in, err := purchaseFromPayment(user.ID, b.opts.PlanDurationDays, msg.SuccessfulPayment)
	if err != nil {
		b.log.Error("parse successful payment", "user", user.ID, "err", err)
		b.sendText(msg.Chat.ID, "Payment received but could not be matched to a plan. Support has been notified.")
		return
	}

	res, err := b.svc.Payments.ConfirmPurchase(ctx, in)
	if err != nil && res == nil {
		b.log.Error("confirm purchase", "user", user.ID, "transaction", in.TransactionID, "err", err)
		b.sendText(msg.Chat.ID, "Payment received. Your plan will be activated shortly.")
		return
	}
	if err != nil {
		// The purchase stands; replaying the confirmation credits the commission.
		b.log.Error("credit commission", "user", user.ID, "transaction", in.TransactionID, "err", err)
	}
	b.sendText(msg.Chat.ID, purchaseReply(res))
}

func purchaseReply(res *service.PurchaseResult) string {
	if res.AlreadyProcessed || res.Plan == nil {
		return "This payment has already been applied."
	}
	return fmt.Sprintf("Payment received! %s is active. Use /plan to see your quota.", res.Plan.PlanName)
}

func purchaseFromPayment(userID int64, durationDays int, payment *tgbotapi.SuccessfulPayment) (service.PurchaseInput, error) {
	name, ok := parseInvoicePayload(payment.InvoicePayload)
	if !ok {
		return service.PurchaseInput{}, fmt.Errorf("unknown invoice payload %q", payment.InvoicePayload)
	}
	txID := payment.ProviderPaymentChargeID
	if txID == "" {
		txID = payment.TelegramPaymentChargeID
	}
	raw, _ := json.Marshal(payment)
	return service.PurchaseInput{
		UserID:        userID,
		PlanName:      name,
		DurationDays:  durationDays,
		Provider:      service.ProviderTelegram,
		TransactionID: txID,
		Amount:        float64(payment.TotalAmount) / 100,
		Currency:      strings.ToUpper(payment.Currency),
		Payload:       string(raw),
	}, nil
}
