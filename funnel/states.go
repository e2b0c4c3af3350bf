// Package funnel drives the onboarding conversation: welcome on /start,
// a delayed intro audio, a delayed materials prompt, material intake,
// the program notice and finally the personal referral link. Progress
// per user is tracked as a linear state machine.
package funnel

import "dripbot/core/telegram/state"

// Funnel stages in order. A user with no recorded state has not started.
const (
	StateGreeted           state.State = "greeted"
	StateReceivedAudio     state.State = "received_audio"
	StateAwaitingMaterials state.State = "awaiting_materials"
	StateMaterialsReceived state.State = "materials_received"
	StateProgramNotified   state.State = "program_notified"
	StateReferralProvided  state.State = "referral_provided"
)
