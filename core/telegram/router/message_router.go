package router

import (
	"time"

	tg "dripbot/core/telegram"
	"dripbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MessageOptions binds content-type endpoints to handlers. Nil handlers
// leave the corresponding update kind unrouted.
type MessageOptions struct {
	Text     tele.HandlerFunc
	Voice    tele.HandlerFunc
	Material tele.HandlerFunc
}

// MessageRoutes builds routes for the message content types the bot
// understands: free text, voice/audio notes, and document or photo
// attachments. Command-shaped text that matches a registered command is
// dispatched to that command's handler first.
func MessageRoutes(reg *tg.Registry, opts MessageOptions) []tg.Route {
	textHandler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if opts.Text != nil {
			return handleWithSummary(c, "text", start, "", "", func() error {
				return opts.Text(c)
			})
		}

		logHandlerSummary(c, "text", start, "skip", "ok", nil)
		return nil
	}

	voiceHandler := func(c tele.Context) error {
		start := time.Now()
		if opts.Voice != nil {
			return handleWithSummary(c, "voice", start, "", "", func() error {
				return opts.Voice(c)
			})
		}
		logHandlerSummary(c, "voice", start, "skip", "ok", nil)
		return nil
	}

	materialHandler := func(c tele.Context) error {
		start := time.Now()
		if opts.Material != nil {
			return handleWithSummary(c, "material", start, "", "", func() error {
				return opts.Material(c)
			})
		}
		logHandlerSummary(c, "material", start, "skip", "ok", nil)
		return nil
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(textHandler)},
		{Endpoint: tele.OnVoice, Handler: wrap(voiceHandler)},
		{Endpoint: tele.OnAudio, Handler: wrap(voiceHandler)},
		{Endpoint: tele.OnDocument, Handler: wrap(materialHandler)},
		{Endpoint: tele.OnPhoto, Handler: wrap(materialHandler)},
	}
}
