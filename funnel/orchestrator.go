package funnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dripbot/core/logger"
	"dripbot/core/telegram/state"
	"dripbot/service"
	"dripbot/storage"
)

const component = "funnel"

// Sender delivers outbound messages. Delivery happens synchronously so
// a failed send aborts the step before any state transition is recorded.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Config tunes the funnel timing and the referral link shape.
type Config struct {
	// IntroAudioDelay is the pause between the welcome and the intro audio.
	IntroAudioDelay time.Duration
	// MaterialsPromptDelay is the pause between the intro audio and the
	// materials upload suggestion.
	MaterialsPromptDelay time.Duration
	// ReferralLinkBase is the deep-link prefix the referral code is
	// appended to, e.g. "https://t.me/your_bot_username?start=".
	ReferralLinkBase string
}

// Orchestrator advances users through the onboarding funnel.
type Orchestrator struct {
	users     *service.Users
	referrals *service.Referrals
	states    state.Manager
	sender    Sender
	cfg       Config

	// after is swappable for tests; production uses time.AfterFunc.
	after func(d time.Duration, f func()) *time.Timer
}

// New builds the orchestrator. All dependencies are required.
func New(users *service.Users, referrals *service.Referrals, states state.Manager, sender Sender, cfg Config) *Orchestrator {
	return &Orchestrator{
		users:     users,
		referrals: referrals,
		states:    states,
		sender:    sender,
		cfg:       cfg,
		after:     time.AfterFunc,
	}
}

// Handle routes one inbound message through the funnel.
func (o *Orchestrator) Handle(ctx context.Context, in Inbound) error {
	switch in.Kind {
	case KindStart:
		return o.handleStart(ctx, in)
	case KindVoice:
		return o.sender.Send(ctx, in.ChatID, msgVoiceAck)
	case KindMaterial:
		return o.handleMaterial(ctx, in)
	case KindProgramQuery:
		return o.sender.Send(ctx, in.ChatID, msgProgramQuery)
	case KindReferralQuery:
		return o.sender.Send(ctx, in.ChatID, msgReferralQuery)
	case KindText:
		return o.handleText(ctx, in)
	default:
		return nil
	}
}

// handleStart registers the user, greets them and schedules the intro
// audio. Repeated /start restarts the funnel from the top; user
// creation is idempotent so only the conversation position resets.
func (o *Orchestrator) handleStart(ctx context.Context, in Inbound) error {
	referrerID := o.resolveReferrer(ctx, in)

	user, created, err := o.users.GetOrCreate(ctx, in.Profile, referrerID)
	if err != nil {
		return fmt.Errorf("funnel: start: %w", err)
	}

	if created && referrerID != 0 {
		if err := o.referrals.Record(ctx, referrerID, user.ID); err != nil && !errors.Is(err, storage.ErrConflict) {
			logger.Warn(ctx, component, "referral_record_failed",
				slog.Int64("referrer_id", referrerID),
				slog.Int64("referred_id", user.ID),
				slog.String("err", err.Error()),
			)
		}
	}

	if err := o.sender.Send(ctx, in.ChatID, msgWelcome); err != nil {
		return fmt.Errorf("funnel: send welcome: %w", err)
	}

	at := o.transition(ctx, in.Profile.TelegramID, StateGreeted)
	o.schedule(in, StateGreeted, at, o.cfg.IntroAudioDelay, o.sendIntroAudio)
	return nil
}

// sendIntroAudio runs as the delayed continuation of the welcome step.
func (o *Orchestrator) sendIntroAudio(ctx context.Context, in Inbound) {
	if err := o.sender.Send(ctx, in.ChatID, msgIntroAudio); err != nil {
		logger.Error(ctx, component, "intro_audio_failed",
			slog.Int64("chat_id", in.ChatID),
			slog.String("err", err.Error()),
		)
		return
	}
	at := o.transition(ctx, in.Profile.TelegramID, StateReceivedAudio)
	o.schedule(in, StateReceivedAudio, at, o.cfg.MaterialsPromptDelay, o.suggestMaterials)
}

// suggestMaterials runs as the delayed continuation of the intro audio.
func (o *Orchestrator) suggestMaterials(ctx context.Context, in Inbound) {
	if err := o.sender.Send(ctx, in.ChatID, msgSuggestUpload); err != nil {
		logger.Error(ctx, component, "materials_prompt_failed",
			slog.Int64("chat_id", in.ChatID),
			slog.String("err", err.Error()),
		)
		return
	}
	o.transition(ctx, in.Profile.TelegramID, StateAwaitingMaterials)
}

// handleMaterial acknowledges uploads. Only uploads arriving while the
// funnel waits for materials advance it; stray uploads are thanked and
// the conversation position stays put. An upload at an intermediate
// stage resumes the chain from where a failed send left it.
func (o *Orchestrator) handleMaterial(ctx context.Context, in Inbound) error {
	user, _, err := o.users.GetOrCreate(ctx, in.Profile, 0)
	if err != nil {
		return fmt.Errorf("funnel: material: %w", err)
	}

	st, _, _ := o.states.GetState(in.Profile.TelegramID)
	switch st {
	case StateAwaitingMaterials:
		if err := o.sender.Send(ctx, in.ChatID, msgMaterialsThanks); err != nil {
			return fmt.Errorf("funnel: send materials ack: %w", err)
		}
		o.transition(ctx, in.Profile.TelegramID, StateMaterialsReceived)
		return o.notifyProgram(ctx, in, user.ID)
	case StateMaterialsReceived:
		return o.notifyProgram(ctx, in, user.ID)
	case StateProgramNotified:
		return o.provideReferralLink(ctx, in, user.ID)
	default:
		return o.sender.Send(ctx, in.ChatID, msgMaterialsThanks)
	}
}

// notifyProgram announces program creation and hands off to the
// referral link step.
func (o *Orchestrator) notifyProgram(ctx context.Context, in Inbound, userID int64) error {
	if err := o.sender.Send(ctx, in.ChatID, msgProgramNotice); err != nil {
		return fmt.Errorf("funnel: send program notice: %w", err)
	}
	o.transition(ctx, in.Profile.TelegramID, StateProgramNotified)
	return o.provideReferralLink(ctx, in, userID)
}

// provideReferralLink finishes the funnel with a personal deep link.
func (o *Orchestrator) provideReferralLink(ctx context.Context, in Inbound, userID int64) error {
	code, err := o.referrals.EnsureCode(ctx, userID)
	if err != nil {
		return fmt.Errorf("funnel: referral code: %w", err)
	}

	link := o.cfg.ReferralLinkBase + code
	if err := o.sender.Send(ctx, in.ChatID, fmt.Sprintf(msgReferralLink, link)); err != nil {
		return fmt.Errorf("funnel: send referral link: %w", err)
	}
	o.transition(ctx, in.Profile.TelegramID, StateReferralProvided)
	return nil
}

// handleText answers free text according to conversation position.
func (o *Orchestrator) handleText(ctx context.Context, in Inbound) error {
	st, _, ok := o.states.GetState(in.Profile.TelegramID)
	if ok && st == StateAwaitingMaterials {
		return o.sender.Send(ctx, in.ChatID, msgUploadReminder)
	}
	return o.sender.Send(ctx, in.ChatID, msgUseStart)
}

// resolveReferrer maps the /start deep-link payload to a referrer id.
// An unknown or self-referencing code degrades to a plain start.
func (o *Orchestrator) resolveReferrer(ctx context.Context, in Inbound) int64 {
	if in.Payload == "" {
		return 0
	}
	referrer, err := o.referrals.Resolve(ctx, in.Payload)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn(ctx, component, "referrer_resolve_failed",
				slog.String("err", err.Error()),
			)
		}
		return 0
	}
	if referrer.TelegramID == in.Profile.TelegramID {
		return 0
	}
	return referrer.ID
}

// transition records a state change and returns the transition time,
// used by schedule to detect stale continuations.
func (o *Orchestrator) transition(ctx context.Context, telegramID int64, to state.State) time.Time {
	from, _, _ := o.states.GetState(telegramID)
	at := time.Now()
	o.states.SetState(telegramID, to, at)
	logger.Info(ctx, component, "transition",
		slog.Int64("telegram_id", telegramID),
		slog.String("from_state", string(from)),
		slog.String("to_state", string(to)),
	)
	return at
}

// schedule arms a delayed continuation. The continuation fires only if
// the user is still at the expected stage with the same transition
// timestamp; a restarted funnel supersedes pending timers.
func (o *Orchestrator) schedule(in Inbound, expected state.State, setAt time.Time, delay time.Duration, step func(context.Context, Inbound)) {
	o.after(delay, func() {
		ctx := logger.WithUpdateMeta(context.Background(), 0, in.Profile.TelegramID, in.ChatID)
		st, at, ok := o.states.GetState(in.Profile.TelegramID)
		if !ok || st != expected || !at.Equal(setAt) {
			logger.Debug(ctx, component, "continuation_superseded",
				slog.Int64("telegram_id", in.Profile.TelegramID),
				slog.String("state", string(st)),
			)
			return
		}
		step(ctx, in)
	})
}
