package chat

import (
	"strconv"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/tank-queue/bot"
)

// userArgs fills the identity and privilege keys shared by every message kind.
func userArgs(u twitch.User) bot.Args {
	a := bot.Args{
		"userId":   u.ID,
		"userName": u.DisplayName,
	}
	if a["userName"] == "" {
		a["userName"] = u.Name
	}
	if u.Badges["moderator"] > 0 {
		a["isModerator"] = "True"
	}
	if u.Badges["broadcaster"] > 0 {
		a["isBroadcaster"] = "True"
		a["userType"] = "broadcaster"
	}
	return a
}

// PrivateMessageArgs translates a chat line. It reports false for lines the bot has no
// use for (plain chatter).
func PrivateMessageArgs(msg twitch.PrivateMessage) (bot.Args, bool) {
	a := userArgs(msg.User)
	text := strings.TrimSpace(msg.Message)

	if rewardID := msg.Tags["custom-reward-id"]; rewardID != "" {
		a["rewardId"] = rewardID
		a["rawInput"] = text
		return a, true
	}
	if msg.Bits > 0 {
		a["bits"] = strconv.Itoa(msg.Bits)
		return a, true
	}
	if strings.HasPrefix(text, "!") {
		cmd, rest, _ := strings.Cut(text, " ")
		a["command"] = strings.ToLower(cmd)
		a["rawInput"] = strings.TrimSpace(rest)
		return a, true
	}
	return nil, false
}

// UserNoticeArgs translates subscription notices. Individual "subgift" notices that
// belong to a mystery gift are skipped: the preceding "submysterygift" already carries
// the whole count.
func UserNoticeArgs(msg twitch.UserNoticeMessage) (bot.Args, bool) {
	p := msg.MsgParams
	a := userArgs(msg.User)
	a["tier"] = planTier(p["msg-param-sub-plan"])

	switch msg.MsgID {
	case "sub":
		a["monthsSubscribed"] = "1"
	case "resub":
		a["cumulative"] = p["msg-param-cumulative-months"]
		if a["cumulative"] == "" {
			a["cumulative"] = "2"
		}
	case "subgift", "anonsubgift":
		if p["msg-param-community-gift-id"] != "" {
			return nil, false
		}
		a["recipientUserName"] = p["msg-param-recipient-display-name"]
		if a["recipientUserName"] == "" {
			a["recipientUserName"] = p["msg-param-recipient-user-name"]
		}
		a["recipientUserId"] = p["msg-param-recipient-id"]
	case "submysterygift", "anonsubmysterygift":
		a["gifts"] = p["msg-param-mass-gift-count"]
		if a["gifts"] == "" {
			a["gifts"] = "1"
		}
	default:
		return nil, false
	}
	return a, true
}

// planTier maps a sub plan ("1000", "2000", "3000", "Prime") to a tier number.
func planTier(plan string) string {
	switch plan {
	case "2000":
		return "2"
	case "3000":
		return "3"
	}
	return "1"
}
