package dispatch

import (
	"regexp"
	"strings"

	"github.com/slack-go/slack/slackevents"
)

// leadingMentions matches the run of user mentions ("<@U123> ") a message starts with.
var leadingMentions = regexp.MustCompile(`^\s*(?:<@\w+>\s*)+`)

// ExtractMessage returns the question ev asks the bot, or "" if ev is not
// something the bot answers. Mentions are stripped from app_mention text;
// direct messages are taken as written.
func ExtractMessage(ev *Event) string {
	if ev == nil {
		return ""
	}
	switch ev.Type {
	case string(slackevents.AppMention):
		return strings.TrimSpace(StripMentions(ev.Text))
	case string(slackevents.Message):
		if ev.ChannelType != "im" {
			return ""
		}
		return strings.TrimSpace(ev.Text)
	default:
		return ""
	}
}

// StripMentions removes every leading "<@ID>" token from text.
func StripMentions(text string) string {
	return leadingMentions.ReplaceAllString(text, "")
}
