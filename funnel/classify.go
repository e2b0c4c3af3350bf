package funnel

import (
	"strings"

	"dripbot/service"
)

// Kind distinguishes the inbound message classes the funnel reacts to.
type Kind int

const (
	KindOther Kind = iota
	KindStart
	KindVoice
	KindMaterial
	KindProgramQuery
	KindReferralQuery
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindVoice:
		return "voice"
	case KindMaterial:
		return "material"
	case KindProgramQuery:
		return "program_query"
	case KindReferralQuery:
		return "referral_query"
	case KindText:
		return "text"
	default:
		return "other"
	}
}

// Inbound is a transport-independent view of one incoming message.
type Inbound struct {
	Kind    Kind
	ChatID  int64
	Profile service.Profile
	Text    string
	Payload string // deep-link payload of /start, usually a referral code
}

// ClassifyText maps free text to a funnel kind. Keyword checks run on
// the lowered text so case does not matter; substring match follows the
// support workflow where users type whole phrases.
func ClassifyText(text string) Kind {
	lowered := strings.ToLower(text)
	switch {
	case strings.Contains(lowered, keywordProgram):
		return KindProgramQuery
	case strings.Contains(lowered, keywordReferral):
		return KindReferralQuery
	default:
		return KindText
	}
}
