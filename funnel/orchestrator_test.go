package funnel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dripbot/core/database"
	"dripbot/core/logger"
	"dripbot/core/telegram/state"
	"dripbot/service"
	"dripbot/storage"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu         sync.Mutex
	sent       []sentMessage
	failText   string
	failPrefix string
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failText != "" && text == f.failText {
		return errors.New("delivery failed")
	}
	if f.failPrefix != "" && strings.HasPrefix(text, f.failPrefix) {
		return errors.New("delivery failed")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.text
	}
	return out
}

// fixture wires the orchestrator over a real store with delayed
// continuations captured instead of armed, so tests fire them
// deterministically.
type fixture struct {
	orch      *Orchestrator
	sender    *fakeSender
	states    state.Manager
	users     *service.Users
	referrals *service.Referrals

	mu    sync.Mutex
	steps []func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_ = logger.InitLogger(nil)

	cfg := database.Config{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		MigrationsDir: "../migrations",
	}
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(cfg))

	store := storage.New(db)
	f := &fixture{
		sender:    &fakeSender{},
		states:    state.NewMemoryManager(),
		users:     service.NewUsers(store),
		referrals: service.NewReferrals(store, service.ReferralOptions{}),
	}
	f.orch = New(f.users, f.referrals, f.states, f.sender, Config{
		IntroAudioDelay:      4 * time.Second,
		MaterialsPromptDelay: 2 * time.Second,
		ReferralLinkBase:     "https://t.me/testbot?start=",
	})
	f.orch.after = func(_ time.Duration, fn func()) *time.Timer {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.steps = append(f.steps, fn)
		return nil
	}
	return f
}

// fireNext runs the oldest pending continuation.
func (f *fixture) fireNext(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	require.NotEmpty(t, f.steps, "no pending continuation")
	step := f.steps[0]
	f.steps = f.steps[1:]
	f.mu.Unlock()
	step()
}

func (f *fixture) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.steps)
}

func startInbound(telegramID, chatID int64) Inbound {
	return Inbound{
		Kind:    KindStart,
		ChatID:  chatID,
		Profile: service.Profile{TelegramID: telegramID},
	}
}

func (f *fixture) stateOf(telegramID int64) state.State {
	st, _, _ := f.states.GetState(telegramID)
	return st
}

func TestStartGreetsAndSchedulesAudio(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.Handle(ctx, startInbound(100, 100)))

	require.Equal(t, []string{msgWelcome}, f.sender.texts())
	require.Equal(t, StateGreeted, f.stateOf(100))
	require.Equal(t, 1, f.pending())
}

func TestFunnelHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.Handle(ctx, startInbound(100, 100)))

	f.fireNext(t) // intro audio
	require.Equal(t, StateReceivedAudio, f.stateOf(100))

	f.fireNext(t) // materials prompt
	require.Equal(t, StateAwaitingMaterials, f.stateOf(100))
	require.Equal(t, []string{msgWelcome, msgIntroAudio, msgSuggestUpload}, f.sender.texts())

	require.NoError(t, f.orch.Handle(ctx, Inbound{
		Kind:    KindMaterial,
		ChatID:  100,
		Profile: service.Profile{TelegramID: 100},
	}))
	require.Equal(t, StateReferralProvided, f.stateOf(100))

	user, err := f.users.GetUserByTelegramID(ctx, 100)
	require.NoError(t, err)
	require.NotEmpty(t, user.ReferralCode)

	link := "https://t.me/testbot?start=" + user.ReferralCode
	require.Equal(t, []string{
		msgWelcome,
		msgIntroAudio,
		msgSuggestUpload,
		msgMaterialsThanks,
		msgProgramNotice,
		fmt.Sprintf(msgReferralLink, link),
	}, f.sender.texts())
}

func TestRepeatedStartSupersedesPendingContinuation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.Handle(ctx, startInbound(100, 100)))
	require.NoError(t, f.orch.Handle(ctx, startInbound(100, 100)))
	require.Equal(t, 2, f.pending())

	// The first continuation observes a newer transition and does nothing.
	f.fireNext(t)
	require.Equal(t, []string{msgWelcome, msgWelcome}, f.sender.texts())
	require.Equal(t, StateGreeted, f.stateOf(100))

	// The second one belongs to the latest /start and proceeds.
	f.fireNext(t)
	require.Equal(t, StateReceivedAudio, f.stateOf(100))
}

func TestMaterialOutsideAwaitingDoesNotAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.Handle(ctx, Inbound{
		Kind:    KindMaterial,
		ChatID:  100,
		Profile: service.Profile{TelegramID: 100},
	}))

	require.Equal(t, []string{msgMaterialsThanks}, f.sender.texts())
	require.False(t, f.states.InProgress(100))
}

func TestTextAnswersByPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := Inbound{Kind: KindText, ChatID: 100, Profile: service.Profile{TelegramID: 100}}
	require.NoError(t, f.orch.Handle(ctx, in))
	require.Equal(t, []string{msgUseStart}, f.sender.texts())

	f.states.SetState(100, StateAwaitingMaterials, time.Now())
	require.NoError(t, f.orch.Handle(ctx, in))
	require.Equal(t, []string{msgUseStart, msgUploadReminder}, f.sender.texts())
}

func TestKeywordQueriesAndVoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := Inbound{ChatID: 100, Profile: service.Profile{TelegramID: 100}}

	program := base
	program.Kind = KindProgramQuery
	require.NoError(t, f.orch.Handle(ctx, program))

	referral := base
	referral.Kind = KindReferralQuery
	require.NoError(t, f.orch.Handle(ctx, referral))

	voice := base
	voice.Kind = KindVoice
	require.NoError(t, f.orch.Handle(ctx, voice))

	require.Equal(t, []string{msgProgramQuery, msgReferralQuery, msgVoiceAck}, f.sender.texts())
	require.False(t, f.states.InProgress(100), "service replies must not touch funnel position")
}

func TestDeepLinkReferralAttribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Referrer walks the whole funnel to obtain a code.
	require.NoError(t, f.orch.Handle(ctx, startInbound(1, 1)))
	f.fireNext(t)
	f.fireNext(t)
	require.NoError(t, f.orch.Handle(ctx, Inbound{
		Kind:    KindMaterial,
		ChatID:  1,
		Profile: service.Profile{TelegramID: 1},
	}))

	referrer, err := f.users.GetUserByTelegramID(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, referrer.ReferralCode)

	in := startInbound(2, 2)
	in.Payload = referrer.ReferralCode
	require.NoError(t, f.orch.Handle(ctx, in))

	referred, err := f.users.GetUserByTelegramID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, referrer.ID, referred.ReferredBy)

	count, err := f.referrals.Count(ctx, referrer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestDeepLinkUnknownAndSelfCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := startInbound(1, 1)
	in.Payload = "nosuchcode"
	require.NoError(t, f.orch.Handle(ctx, in))

	user, err := f.users.GetUserByTelegramID(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, user.ReferredBy)

	code, err := f.referrals.EnsureCode(ctx, user.ID)
	require.NoError(t, err)

	// /start with the user's own code must not self-attribute. The user
	// already exists so no referral is recorded either way; assert via
	// the counter.
	again := startInbound(1, 1)
	again.Payload = code
	require.NoError(t, f.orch.Handle(ctx, again))

	count, err := f.referrals.Count(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestWelcomeFailureLeavesNoState(t *testing.T) {
	f := newFixture(t)
	f.sender.failText = msgWelcome
	ctx := context.Background()

	err := f.orch.Handle(ctx, startInbound(100, 100))
	require.Error(t, err)
	require.False(t, f.states.InProgress(100))
	require.Zero(t, f.pending())

	// The user record itself is still created; retrying /start resumes.
	_, lookupErr := f.users.GetUserByTelegramID(ctx, 100)
	require.NoError(t, lookupErr)
}

func TestMaterialResumesAfterProgramNoticeFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.Handle(ctx, startInbound(100, 100)))
	f.fireNext(t)
	f.fireNext(t)

	f.sender.failText = msgProgramNotice
	err := f.orch.Handle(ctx, Inbound{
		Kind:    KindMaterial,
		ChatID:  100,
		Profile: service.Profile{TelegramID: 100},
	})
	require.Error(t, err)
	require.Equal(t, StateMaterialsReceived, f.stateOf(100))

	// The next upload resumes from the program notice, without a
	// duplicate thanks message.
	f.sender.failText = ""
	require.NoError(t, f.orch.Handle(ctx, Inbound{
		Kind:    KindMaterial,
		ChatID:  100,
		Profile: service.Profile{TelegramID: 100},
	}))
	require.Equal(t, StateReferralProvided, f.stateOf(100))

	texts := f.sender.texts()
	thanks := 0
	for _, txt := range texts {
		if txt == msgMaterialsThanks {
			thanks++
		}
	}
	require.Equal(t, 1, thanks)
}

func TestMaterialRetriesReferralLinkAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.Handle(ctx, startInbound(100, 100)))
	f.fireNext(t)
	f.fireNext(t)

	f.sender.failPrefix = "Ваша уникальная реферальная ссылка"
	err := f.orch.Handle(ctx, Inbound{
		Kind:    KindMaterial,
		ChatID:  100,
		Profile: service.Profile{TelegramID: 100},
	})
	require.Error(t, err)
	require.Equal(t, StateProgramNotified, f.stateOf(100))

	f.sender.failPrefix = ""
	require.NoError(t, f.orch.Handle(ctx, Inbound{
		Kind:    KindMaterial,
		ChatID:  100,
		Profile: service.Profile{TelegramID: 100},
	}))
	require.Equal(t, StateReferralProvided, f.stateOf(100))

	user, err := f.users.GetUserByTelegramID(ctx, 100)
	require.NoError(t, err)
	last := f.sender.texts()[len(f.sender.texts())-1]
	require.Equal(t, fmt.Sprintf(msgReferralLink, "https://t.me/testbot?start="+user.ReferralCode), last)
}

func TestMaterialAckFailureKeepsAwaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.Handle(ctx, startInbound(100, 100)))
	f.fireNext(t)
	f.fireNext(t)
	require.Equal(t, StateAwaitingMaterials, f.stateOf(100))

	f.sender.failText = msgMaterialsThanks
	err := f.orch.Handle(ctx, Inbound{
		Kind:    KindMaterial,
		ChatID:  100,
		Profile: service.Profile{TelegramID: 100},
	})
	require.Error(t, err)
	require.Equal(t, StateAwaitingMaterials, f.stateOf(100))

	// Retry once delivery recovers.
	f.sender.failText = ""
	require.NoError(t, f.orch.Handle(ctx, Inbound{
		Kind:    KindMaterial,
		ChatID:  100,
		Profile: service.Profile{TelegramID: 100},
	}))
	require.Equal(t, StateReferralProvided, f.stateOf(100))
}
