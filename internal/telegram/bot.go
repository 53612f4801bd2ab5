package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
	"github.com/payraan/narmoonai-test-sub000/internal/service"
)

const buyCallbackPrefix = "buy:"

type Options struct {
	// Username renders referral deep links; links are omitted when empty.
	Username             string
	PaymentProviderToken string
	Currency             string
	PlanDurationDays     int
	Location             *time.Location
}

type Services struct {
	Users         *service.UserService
	Plans         *service.PlanService
	Quota         *service.QuotaService
	Subscriptions *service.SubscriptionService
	Referrals     *service.ReferralService
	Payments      *service.PaymentService
}

// Bot is the chat surface of the engine. It keeps no state of its own.
type Bot struct {
	opts Options
	api  *tgbotapi.BotAPI
	log  *slog.Logger
	svc  Services
}

func NewBot(opts Options, api *tgbotapi.BotAPI, log *slog.Logger, svc Services) *Bot {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Bot{
		opts: opts,
		api:  api,
		log:  log,
		svc:  svc,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started", "username", b.api.Self.UserName)

	for {
		select {
		case update := <-updates:
			switch {
			case update.Message != nil:
				b.handleMessage(ctx, update.Message)
			case update.CallbackQuery != nil:
				b.handleCallback(ctx, update.CallbackQuery)
			case update.PreCheckoutQuery != nil:
				b.handlePreCheckout(ctx, update.PreCheckoutQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

// SendText delivers a plain message; the admin broadcast uses it.
func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, msg)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.sendText(msg.Chat.ID, "Use /plans to pick a plan, /plan to see your quota and /referral to invite friends.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	user, created, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "command", msg.Command(), "err", err)
		b.sendText(msg.Chat.ID, "Service is temporarily unavailable, please try again later.")
		return
	}

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg, user, created)
	case "plan":
		b.handlePlan(ctx, msg.Chat.ID, user)
	case "plans":
		b.sendCatalog(ctx, msg.Chat.ID)
	case "buy":
		name := strings.TrimSpace(msg.CommandArguments())
		if name == "" {
			b.sendCatalog(ctx, msg.Chat.ID)
			return
		}
		b.sendInvoice(ctx, msg.Chat.ID, name)
	case "referral":
		b.handleReferral(ctx, msg.Chat.ID, user)
	default:
		b.sendText(msg.Chat.ID, "Unknown command. Try /plans.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message, user *models.User, created bool) {
	name := user.FirstName
	if name == "" {
		name = "there"
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"Hi, %s!\n\nChart analysis needs an active plan.\n\nCommands:\n/plans - available plans\n/buy <plan> - purchase a plan\n/plan - your plan and quota\n/referral - your invite link",
		name,
	))

	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		return
	}
	_, err := b.svc.Referrals.CreateReferralRelationship(ctx, code, user.ID)
	if err != nil && !errors.Is(err, service.ErrInvalidCode) && !errors.Is(err, service.ErrSelfReferral) && !errors.Is(err, service.ErrAlreadyReferred) {
		b.log.Error("create referral", "user", user.ID, "new_user", created, "err", err)
	}
	if reply := referralReply(err); reply != "" {
		b.sendText(msg.Chat.ID, reply)
	}
}

func (b *Bot) handlePlan(ctx context.Context, chatID int64, user *models.User) {
	status, err := b.svc.Subscriptions.Status(ctx, user.ID)
	if err != nil {
		b.log.Error("plan status", "user", user.ID, "err", err)
		b.sendText(chatID, "Service is temporarily unavailable, please try again later.")
		return
	}
	usage, err := b.svc.Quota.Usage(ctx, user.ID)
	if err != nil {
		b.log.Error("plan usage", "user", user.ID, "err", err)
		b.sendText(chatID, "Service is temporarily unavailable, please try again later.")
		return
	}
	b.sendText(chatID, formatPlanStatus(status, usage, b.opts.Location))
}

func (b *Bot) handleReferral(ctx context.Context, chatID int64, user *models.User) {
	code, err := b.svc.Referrals.ReferralCode(ctx, user.ID)
	if err != nil {
		b.log.Error("referral code", "user", user.ID, "err", err)
		b.sendText(chatID, "Could not create your referral code, please try again later.")
		return
	}
	stats, err := b.svc.Referrals.Stats(ctx, user.ID)
	if err != nil {
		b.log.Error("referral stats", "user", user.ID, "err", err)
		b.sendText(chatID, "Service is temporarily unavailable, please try again later.")
		return
	}
	b.sendText(chatID, formatReferral(b.opts.Username, code, stats))
}

func (b *Bot) sendCatalog(ctx context.Context, chatID int64) {
	plans, err := b.svc.Plans.ListActive(ctx)
	if err != nil {
		b.log.Error("list plans", "err", err)
		b.sendText(chatID, "Service is temporarily unavailable, please try again later.")
		return
	}
	if len(plans) == 0 {
		b.sendText(chatID, "No plans are available right now.")
		return
	}

	var sb strings.Builder
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(plans))
	sb.WriteString("Available plans:\n")
	for _, p := range plans {
		sb.WriteString(formatPlanLine(p, b.opts.Currency))
		sb.WriteString("\n")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Buy "+p.DisplayName, buyCallbackPrefix+p.PlanName),
		))
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send catalog", "err", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || !strings.HasPrefix(cb.Data, buyCallbackPrefix) {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "Unknown action")); err != nil {
			b.log.Error("callback ack", "err", err)
		}
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Error("callback ack", "err", err)
	}
	if _, _, err := b.ensureUser(ctx, cb.From, cb.Message.Chat.ID); err != nil {
		b.log.Error("ensure user callback", "err", err)
		return
	}
	b.sendInvoice(ctx, cb.Message.Chat.ID, strings.TrimPrefix(cb.Data, buyCallbackPrefix))
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, bool, error) {
	telegramID := chatID
	var username, firstName string
	if from != nil {
		telegramID = from.ID
		username = from.UserName
		firstName = from.FirstName
	}
	return b.svc.Users.Ensure(ctx, telegramID, username, firstName)
}

func (b *Bot) sendText(chatID int64, text string) {
	if err := b.SendText(context.Background(), chatID, text); err != nil {
		b.log.Error("send text", "err", err)
	}
}
