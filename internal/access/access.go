// Package access grants and revokes membership in the gated group.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/gatekeep/internal/model"
	"github.com/dukerupert/gatekeep/internal/plan"
	"github.com/dukerupert/gatekeep/internal/scheduler"
	"github.com/dukerupert/gatekeep/internal/subscription"
	"github.com/dukerupert/gatekeep/internal/telegram"
)

// inviteWindow is how long a fallback invite link stays valid.
const inviteWindow = 2 * time.Minute

// GroupAPI is the slice of the messaging client the controller needs.
type GroupAPI interface {
	AddChatMember(ctx context.Context, chatID, userID int64) error
	UnbanChatMember(ctx context.Context, chatID, userID int64) error
	BanChatMember(ctx context.Context, chatID, userID int64) error
	CreateChatInviteLink(ctx context.Context, chatID int64, memberLimit int, expireAt time.Time) (*telegram.ChatInviteLink, error)
	RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error
	SendMessage(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
}

// Outcome describes how group access was delivered.
type Outcome int

const (
	// OutcomeDirect: the user was added to the group directly.
	OutcomeDirect Outcome = iota
	// OutcomeInvite: a single-use, time-boxed invite link was sent.
	OutcomeInvite
	// OutcomeManual: neither worked; the user was told to contact support.
	OutcomeManual
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDirect:
		return "direct"
	case OutcomeInvite:
		return "invite"
	case OutcomeManual:
		return "manual"
	}
	return "unknown"
}

// Controller performs group adds, invite fallbacks, and expiry revocations.
// Invite revocation timers live in their own scheduler so they never collide
// with the same principal's subscription expiry timer.
type Controller struct {
	api     GroupAPI
	subs    *subscription.Service
	invites *scheduler.Scheduler
	groupID int64
	window  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewController wires a controller for the given group.
func NewController(api GroupAPI, subs *subscription.Service, invites *scheduler.Scheduler, groupID int64, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		api:     api,
		subs:    subs,
		invites: invites,
		groupID: groupID,
		window:  inviteWindow,
		now:     time.Now,
		logger:  logger,
	}
}

// SetInviteWindow overrides the invite validity window. Tests only.
func (c *Controller) SetInviteWindow(d time.Duration) {
	c.window = d
}

// Grant records/extends the subscription and delivers group access: direct
// add first, then a single-use invite link, then a support-contact message.
// Subscription bookkeeping happens regardless of how delivery goes; the
// returned error reports a bookkeeping failure only.
func (c *Controller) Grant(ctx context.Context, principal int64, p plan.Plan) (Outcome, error) {
	_, recordErr := c.subs.Record(principal, p)
	if recordErr != nil {
		c.logger.Error("record subscription", "principal", principal, "error", recordErr)
		recordErr = fmt.Errorf("grant access: %w", recordErr)
	}

	if err := c.api.AddChatMember(ctx, c.groupID, principal); err == nil {
		c.logger.Info("member added directly", "principal", principal)
		c.sendf(ctx, principal, nil,
			"🎉 *PAGAMENTO CONFIRMADO! ACESSO LIBERADO!*\n\n*Você foi adicionado ao grupo VIP!*\n\n*Plano: %s*\n⏰ *Expira em: %d dias*",
			p.Name, p.Days)
		return OutcomeDirect, recordErr
	} else {
		c.logger.Warn("direct add failed, falling back to invite", "principal", principal, "error", err)
	}

	grant, err := c.createInvite(ctx, principal)
	if err != nil {
		c.logger.Error("create invite link", "principal", principal, "error", err)
		c.sendf(ctx, principal, nil,
			"🎉 *PAGAMENTO CONFIRMADO!*\n\n*Plano: %s*\n⏰ *Expira em: %d dias*\n\n❌ *Entre em contato com o suporte para receber acesso ao grupo.*",
			p.Name, p.Days)
		return OutcomeManual, recordErr
	}

	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row(telegram.InlineKeyboardButton{Text: "🎸 ENTRAR NO GRUPO VIP (⏰2min)", URL: grant.Link}),
	}}
	c.sendf(ctx, principal, kb,
		"🎉 *PAGAMENTO CONFIRMADO!*\n\n*Plano: %s*\n⏰ *Expira em: %d dias*\n\n⚠️ *LINK VÁLIDO POR APENAS 2 MINUTOS!*\n\n*Clique no botão abaixo para entrar no grupo VIP:*",
		p.Name, p.Days)

	return OutcomeInvite, recordErr
}

// createInvite issues a single-use invite and schedules its revocation at the
// window end whether or not it gets used.
func (c *Controller) createInvite(ctx context.Context, principal int64) (*model.InviteGrant, error) {
	// A returning subscriber may still be banned from the earlier expiry.
	if err := c.api.UnbanChatMember(ctx, c.groupID, principal); err != nil {
		c.logger.Debug("unban before invite", "principal", principal, "error", err)
	}

	now := c.now()
	expireAt := now.Add(c.window)
	link, err := c.api.CreateChatInviteLink(ctx, c.groupID, 1, expireAt)
	if err != nil {
		return nil, err
	}

	grant := &model.InviteGrant{
		Link:      link.InviteLink,
		Principal: principal,
		CreatedAt: now,
		ExpiresAt: expireAt,
	}

	c.invites.Arm(principal, expireAt, func() {
		if err := c.api.RevokeChatInviteLink(context.Background(), c.groupID, grant.Link); err != nil {
			c.logger.Warn("revoke invite link", "principal", principal, "error", err)
			return
		}
		c.logger.Info("invite link revoked", "principal", principal)
	})

	return grant, nil
}

// Revoke removes the principal from the group, deactivates the subscription,
// and notifies them. A group-removal failure is logged but never blocks the
// deactivation or the notice.
func (c *Controller) Revoke(ctx context.Context, principal int64) {
	if err := c.api.BanChatMember(ctx, c.groupID, principal); err != nil {
		c.logger.Error("remove member from group", "principal", principal, "error", err)
	} else {
		c.logger.Info("member removed from group", "principal", principal)
	}

	if err := c.subs.Deactivate(principal); err != nil {
		c.logger.Error("deactivate subscription", "principal", principal, "error", err)
	}

	c.sendf(ctx, principal, nil,
		"❌ *SUA ASSINATURA EXPIROU!*\n\nSeu acesso ao grupo VIP foi encerrado.\n\nPara continuar tendo acesso, renove sua assinatura! 🔥")
}

func (c *Controller) sendf(ctx context.Context, principal int64, kb *telegram.InlineKeyboardMarkup, format string, args ...any) {
	if _, err := c.api.SendMessage(ctx, principal, fmt.Sprintf(format, args...), kb); err != nil {
		c.logger.Error("send message", "principal", principal, "error", err)
	}
}
