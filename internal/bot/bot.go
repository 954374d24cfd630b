// Package bot routes Telegram updates into the purchase flow: plan menus,
// PIX generation, and payment watches.
package bot

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/gatekeep/internal/access"
	"github.com/dukerupert/gatekeep/internal/model"
	"github.com/dukerupert/gatekeep/internal/payment"
	"github.com/dukerupert/gatekeep/internal/plan"
	"github.com/dukerupert/gatekeep/internal/subscription"
	"github.com/dukerupert/gatekeep/internal/telegram"
)

// API is the slice of the Telegram client the bot consumes.
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string, kb *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, kb *telegram.InlineKeyboardMarkup) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
}

// ChargeCreator creates PIX charges.
type ChargeCreator interface {
	CreatePix(ctx context.Context, amount decimal.Decimal, description string, principal int64) (*model.PixCharge, error)
}

// Granter delivers group access after an approved payment.
type Granter interface {
	Grant(ctx context.Context, principal int64, p plan.Plan) (access.Outcome, error)
}

// Bot is the update router.
type Bot struct {
	api     API
	catalog *plan.Catalog
	subs    *subscription.Service
	granter Granter
	charges ChargeCreator
	watcher *payment.Watcher
	logger  *slog.Logger
}

// New wires the bot.
func New(api API, catalog *plan.Catalog, subs *subscription.Service, granter Granter, charges ChargeCreator, watcher *payment.Watcher, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:     api,
		catalog: catalog,
		subs:    subs,
		granter: granter,
		charges: charges,
		watcher: watcher,
		logger:  logger,
	}
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	var offset int64
	for {
		updates, err := b.api.GetUpdates(ctx, offset, 30)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("get updates", "error", err)
			select {
			case <-time.After(3 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			b.dispatch(ctx, u)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.Text == "" {
		return
	}
	if strings.HasPrefix(msg.Text, "/start") {
		b.handleStart(ctx, msg.Chat.ID)
		return
	}
	if strings.HasPrefix(msg.Text, "/") {
		// Unrecognized command; stay quiet.
		return
	}
	// Free text gets nudged toward the plan menu.
	b.sendWelcome(ctx, msg.Chat.ID)
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	sub, err := b.subs.CheckActive(chatID)
	if err != nil {
		b.logger.Error("check active", "principal", chatID, "error", err)
	}
	if sub != nil {
		name := sub.PlanID
		if p, ok := b.catalog.Get(sub.PlanID); ok {
			name = p.Name
		}
		days := int(math.Ceil(time.Until(sub.ExpiresAt).Hours() / 24))
		b.send(ctx, chatID, fmt.Sprintf(
			"✅ *ASSINATURA ATIVA!*\n\n*Plano:* %s\n*Dias restantes:* %d\n\nVocê já tem acesso ao grupo VIP! 🎸",
			name, days), nil)
		return
	}
	b.sendWelcome(ctx, chatID)
}

func (b *Bot) sendWelcome(ctx context.Context, chatID int64) {
	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row(telegram.InlineKeyboardButton{Text: "🔥 VER PLANOS", CallbackData: actionShowPlans}),
	}}
	b.send(ctx, chatID,
		"🔥 *Bem-vindo!* 🎸\n\n*Experimente nosso plano de teste por apenas R$ 19,90!*\n\n*Clique em VER PLANOS abaixo:*", kb)
}

func (b *Bot) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	defer func() {
		if err := b.api.AnswerCallbackQuery(ctx, cb.ID); err != nil {
			b.logger.Error("answer callback", "error", err)
		}
	}()

	if cb.Message == nil {
		b.logger.Warn("callback without message", "data", cb.Data)
		return
	}
	chatID := cb.Message.Chat.ID
	parsed := ParsePayload(cb.Data)
	b.logger.Debug("callback received", "principal", chatID, "action", parsed.Action)

	switch parsed.Action {
	case actionShowPlans:
		b.showPlans(ctx, chatID)
	case actionBuyPlan:
		b.processPlan(ctx, chatID, parsed.Args[0])
	case actionPaid:
		b.handlePaid(ctx, chatID, parsed.Args[0], parsed.Args[1])
	case actionVerify:
		b.handleVerify(ctx, chatID, parsed.Args[0])
	default:
		// Tolerate unknown payloads: log and move on.
		b.logger.Warn("unknown callback payload", "principal", chatID, "data", cb.Data)
	}
}

func (b *Bot) showPlans(ctx context.Context, chatID int64) {
	tokenFor := make(map[string]string, len(planTokens))
	for token, planID := range planTokens {
		tokenFor[planID] = token
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, p := range b.catalog.All() {
		token, ok := tokenFor[p.ID]
		if !ok {
			continue
		}
		label := fmt.Sprintf("🔥 %d DIAS - %s", p.Days, p.PriceLabel())
		rows = append(rows, telegram.Row(telegram.InlineKeyboardButton{Text: label, CallbackData: token}))
	}

	b.send(ctx, chatID,
		"🎸 *PLANOS DISPONÍVEIS* 🔥\n\n*💎 PLANO TESTE: 7 dias por apenas R$ 19,90*\n\n*Escolha o seu plano:*",
		&telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (b *Bot) processPlan(ctx context.Context, chatID int64, planID string) {
	p, ok := b.catalog.Get(planID)
	if !ok {
		b.logger.Warn("plan not found", "principal", chatID, "plan", planID)
		b.send(ctx, chatID, "❌ Plano não encontrado. Tente novamente.", nil)
		return
	}

	progress, err := b.api.SendMessage(ctx, chatID, fmt.Sprintf("⏳ *Gerando PIX para %s...*", p.Name), nil)
	if err != nil {
		b.logger.Error("send progress message", "principal", chatID, "error", err)
		return
	}

	charge, err := b.charges.CreatePix(ctx, p.Price, p.Name, chatID)
	if err != nil {
		b.logger.Error("create pix", "principal", chatID, "plan", p.ID, "error", err)
		b.edit(ctx, chatID, progress.MessageID,
			"❌ *Erro ao gerar PIX*\n\nTente novamente.", nil)
		return
	}

	b.deliverCharge(ctx, chatID, progress.MessageID, p, charge)
	b.startWatch(chatID, p, charge.TransactionID)
}

// deliverCharge prefers the QR image with a caption; when the image can't be
// decoded or sent, the progress message is edited into a text-only version
// with action buttons.
func (b *Bot) deliverCharge(ctx context.Context, chatID, progressID int64, p plan.Plan, charge *model.PixCharge) {
	header := fmt.Sprintf(
		"💎 *PLANO: %s*\n💵 *Valor: %s*\n⏰ *Duração: %d dias*\n⏰ *PIX válido até: %s*",
		p.Name, p.PriceLabel(), p.Days, charge.ExpiresAt.Format("15:04"))
	howTo := fmt.Sprintf(
		"*Ou copie o código PIX abaixo:*\n\n```\n%s\n```\n\n*Como pagar:*\n1. Abra seu app do banco\n2. Cole o código acima no PIX\n3. Confirme o pagamento\n\n✅ *Você será adicionado automaticamente ao grupo VIP após a confirmação!*",
		charge.QRCodeText)

	if charge.QRCodeBase64 != "" {
		png, err := base64.StdEncoding.DecodeString(charge.QRCodeBase64)
		if err == nil {
			caption := header + "\n\n📱 *ESCANEIE O QR CODE ACIMA*\n\n" + howTo
			if _, err := b.api.SendPhoto(ctx, chatID, png, caption, nil); err == nil {
				if err := b.api.DeleteMessage(ctx, chatID, progressID); err != nil {
					b.logger.Debug("delete progress message", "error", err)
				}
				return
			}
			b.logger.Warn("send qr photo failed, falling back to text", "principal", chatID)
		} else {
			b.logger.Warn("decode qr image", "principal", chatID, "error", err)
		}
	}

	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row(telegram.InlineKeyboardButton{Text: "✅ JÁ PAGUEI", CallbackData: fmt.Sprintf("%s_%s_%s", actionPaid, charge.TransactionID, p.ID)}),
		telegram.Row(telegram.InlineKeyboardButton{Text: "🔄 VERIFICAR PAGAMENTO", CallbackData: fmt.Sprintf("%s_%s", actionVerify, charge.TransactionID)}),
		telegram.Row(telegram.InlineKeyboardButton{Text: "🔥 VOLTAR AOS PLANOS", CallbackData: actionShowPlans}),
	}}
	b.edit(ctx, chatID, progressID, header+"\n\n📋 *COPIAR CÓDIGO PIX:*\n\n"+howTo, kb)
}

func (b *Bot) startWatch(chatID int64, p plan.Plan, transactionID string) {
	pending := model.PendingPayment{
		TransactionID: transactionID,
		Principal:     chatID,
		PlanID:        p.ID,
	}
	// The watch outlives the update that created it; it carries its own
	// ceiling instead of the request context.
	err := b.watcher.Watch(context.Background(), pending, payment.Hooks{
		OnApproved: func() {
			if _, err := b.granter.Grant(context.Background(), chatID, p); err != nil {
				b.logger.Error("grant after approval", "principal", chatID, "error", err)
			}
		},
		OnRejected: func() {
			b.send(context.Background(), chatID, "❌ *Pagamento não aprovado.*\n\nTente novamente.", nil)
		},
	})
	if err != nil {
		b.logger.Warn("start payment watch", "transaction", transactionID, "error", err)
	}
}

func (b *Bot) handleVerify(ctx context.Context, chatID int64, transactionID string) {
	if sub, err := b.subs.CheckActive(chatID); err == nil && sub != nil {
		b.send(ctx, chatID, "✅ *Pagamento confirmado!*\n\nVocê já tem acesso ao grupo VIP! 🎸", nil)
		return
	}
	if p, ok := b.watcher.Pending(transactionID); ok {
		b.logger.Debug("payment still pending", "transaction", transactionID, "status", p.Status)
		b.send(ctx, chatID, "🔄 *Pagamento ainda não confirmado.*\n\nAguarde alguns instantes após pagar o PIX.", nil)
		return
	}
	b.send(ctx, chatID, "⚠️ *Cobrança não encontrada ou expirada.*\n\nGere um novo PIX em VER PLANOS.", nil)
}

func (b *Bot) handlePaid(ctx context.Context, chatID int64, transactionID, planID string) {
	p, ok := b.catalog.Get(planID)
	if !ok {
		b.send(ctx, chatID, "❌ Plano não encontrado. Tente novamente.", nil)
		return
	}
	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row(telegram.InlineKeyboardButton{Text: "🔄 VERIFICAR PAGAMENTO", CallbackData: fmt.Sprintf("%s_%s", actionVerify, transactionID)}),
		telegram.Row(telegram.InlineKeyboardButton{Text: "🔥 VOLTAR AOS PLANOS", CallbackData: actionShowPlans}),
	}}
	b.send(ctx, chatID, fmt.Sprintf(
		"✅ *PAGAMENTO REGISTRADO!*\n\n*Plano: %s*\n*Estou verificando a confirmação...*\n\n⏱️ *Você será adicionado automaticamente ao grupo VIP em instantes!*",
		p.Name), kb)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboardMarkup) {
	if _, err := b.api.SendMessage(ctx, chatID, text, kb); err != nil {
		b.logger.Error("send message", "principal", chatID, "error", err)
	}
}

func (b *Bot) edit(ctx context.Context, chatID, messageID int64, text string, kb *telegram.InlineKeyboardMarkup) {
	if err := b.api.EditMessageText(ctx, chatID, messageID, text, kb); err != nil {
		b.logger.Error("edit message", "principal", chatID, "error", err)
	}
}
