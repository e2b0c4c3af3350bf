package app

import (
	"fmt"
	"strings"

	coretelegram "dripbot/core/telegram"
	"dripbot/core/telegram/commands"
	"dripbot/core/telegram/helpers"
	"dripbot/funnel"
	"dripbot/service"
	"dripbot/storage"

	tele "gopkg.in/telebot.v4"
)

// maxStatReferrals caps the per-referral detail lines in /stats output.
const maxStatReferrals = 5

func (a *App) registerCommands(reg *coretelegram.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Начать работу с ботом",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     a.handleStats,
		Description: "Статистика бота",
		AdminOnly:   true,
		Hidden:      true,
	})
}

// inboundFrom projects the transport update into the funnel's view.
func inboundFrom(c tele.Context, kind funnel.Kind) funnel.Inbound {
	in := funnel.Inbound{
		Kind: kind,
	}
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}
	if sender := c.Sender(); sender != nil {
		in.Profile = service.Profile{
			TelegramID: sender.ID,
			Username:   sender.Username,
			FirstName:  sender.FirstName,
			LastName:   sender.LastName,
		}
	}
	return in
}

func (a *App) handleStart(c tele.Context) error {
	in := inboundFrom(c, funnel.KindStart)
	if msg := c.Message(); msg != nil {
		in.Payload = msg.Payload
	}
	ctx := helpers.WithHandler(c, "start")
	return a.funnel.Handle(ctx, in)
}

func (a *App) handleText(c tele.Context) error {
	text := c.Text()
	in := inboundFrom(c, funnel.ClassifyText(text))
	in.Text = text
	ctx := helpers.WithHandler(c, "text")
	return a.funnel.Handle(ctx, in)
}

func (a *App) handleVoice(c tele.Context) error {
	in := inboundFrom(c, funnel.KindVoice)
	ctx := helpers.WithHandler(c, "voice")
	return a.funnel.Handle(ctx, in)
}

func (a *App) handleMaterial(c tele.Context) error {
	in := inboundFrom(c, funnel.KindMaterial)
	ctx := helpers.WithHandler(c, "material")
	return a.funnel.Handle(ctx, in)
}

// handleStats reports aggregate counters to the admin. Replies go
// through the async dispatcher since nothing depends on delivery.
func (a *App) handleStats(c tele.Context) error {
	ctx := helpers.WithHandler(c, "stats")

	total, err := a.users.Count(ctx)
	if err != nil {
		return err
	}

	var referrals []*storage.Referral
	if sender := c.Sender(); sender != nil {
		if user, err := helpers.CurrentUser[*storage.User](ctx, a.users, sender.ID); err == nil && user != nil {
			referrals, _ = a.referrals.List(ctx, user.ID)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Пользователей: %d\nВаших рефералов: %d", total, len(referrals))
	for i, ref := range referrals {
		if i == maxStatReferrals {
			break
		}
		if i == 0 {
			b.WriteString("\nПоследние:")
		}
		fmt.Fprintf(&b, "\n• %s", ref.CreatedAt.Format("2006-01-02"))
	}

	return helpers.SendText(c, b.String())
}

func (a *App) handleAdminReject(c tele.Context) error {
	return helpers.SendText(c, "Команда доступна только администратору.")
}
