// Package app wires the onboarding bot together: storage, services,
// the funnel orchestrator and the Telegram transport.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	corebootstrap "dripbot/core/bootstrap"
	corecmd "dripbot/core/cmd"
	coretelegram "dripbot/core/telegram"
	"dripbot/core/telegram/router"
	tgsender "dripbot/core/telegram/sender"
	"dripbot/core/telegram/state"

	appconfig "dripbot/app/config"
	"dripbot/funnel"
	"dripbot/service"
	"dripbot/storage"

	tele "gopkg.in/telebot.v4"
)

// App carries the wired application components.
type App struct {
	cfg *appconfig.Config

	users     *service.Users
	referrals *service.Referrals
	states    state.Manager
	funnel    *funnel.Orchestrator
	sender    *botSender
}

// botSender delivers funnel messages through the live bot handle. The
// handle appears only once the transport starts, so it is stored
// atomically and set from the OnStart hook.
type botSender struct {
	bot atomic.Pointer[tele.Bot]
}

func (s *botSender) setBot(b *tele.Bot) {
	s.bot.Store(b)
}

// Send delivers text synchronously so the caller observes the outcome
// before recording any state transition.
func (s *botSender) Send(ctx context.Context, chatID int64, text string) error {
	b := s.bot.Load()
	if b == nil {
		return fmt.Errorf("app: bot not started")
	}
	_, err := b.Send(tele.ChatID(chatID), text)
	return err
}

// Bootstrap initializes infrastructure and builds the application.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*appconfig.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	result, err := corebootstrap.Run(corebootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	store := storage.New(result.DB)

	usersProvider := corebootstrap.TypedServiceProviderFunc[*service.Users](
		func(ctx context.Context, _ interface{}, st corebootstrap.Storage) (*service.Users, error) {
			s, ok := st.(*storage.Store)
			if !ok {
				return nil, fmt.Errorf("app: unexpected storage type %T", st)
			}
			return service.NewUsers(s), nil
		},
	)
	referralsProvider := corebootstrap.TypedServiceProviderFunc[*service.Referrals](
		func(ctx context.Context, rawCfg interface{}, st corebootstrap.Storage) (*service.Referrals, error) {
			s, ok := st.(*storage.Store)
			if !ok {
				return nil, fmt.Errorf("app: unexpected storage type %T", st)
			}
			c, ok := rawCfg.(*appconfig.Config)
			if !ok {
				return nil, fmt.Errorf("app: unexpected config type %T", rawCfg)
			}
			return service.NewReferrals(s, service.ReferralOptions{
				CodeLength:  c.Referral.CodeLength,
				MaxAttempts: c.Referral.MaxAttempts,
				CacheTTL:    time.Duration(c.Referral.CacheTTLSeconds) * time.Second,
			}), nil
		},
	)

	ctx := context.Background()
	users, err := usersProvider.ProvideTyped(ctx, cfg, store)
	if err != nil {
		return nil, err
	}
	referrals, err := referralsProvider.ProvideTyped(ctx, cfg, store)
	if err != nil {
		return nil, err
	}

	states := state.NewMemoryManager()
	sender := &botSender{}

	orch := funnel.New(users, referrals, states, sender, funnel.Config{
		IntroAudioDelay:      time.Duration(cfg.Funnel.IntroAudioDelaySeconds) * time.Second,
		MaterialsPromptDelay: time.Duration(cfg.Funnel.MaterialsPromptDelaySeconds) * time.Second,
		ReferralLinkBase:     cfg.Referral.LinkBase,
	})

	return &App{
		cfg:       cfg,
		users:     users,
		referrals: referrals,
		states:    states,
		funnel:    orch,
		sender:    sender,
	}, nil
}

// TelegramRunOptions assembles the transport configuration: commands,
// message routes, middleware chain and the outbound dispatcher.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	a.registerCommands(reg)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: a.handleAdminReject,
	})
	routes = append(routes, router.MessageRoutes(reg, router.MessageOptions{
		Text:     a.handleText,
		Voice:    a.handleVoice,
		Material: a.handleMaterial,
	})...)

	return coretelegram.RunOptions{
		Config:   a.cfg.CoreConfig(),
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			Workers:   a.cfg.Sender.Workers,
			QueueSize: a.cfg.Sender.QueueSize,
		},
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.sender.setBot(rt.Bot)
			return nil
		},
	}, nil
}
