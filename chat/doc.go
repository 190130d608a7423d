// Package chat connects the bot to Twitch IRC.
//
// Incoming PRIVMSG and USERNOTICE lines are translated into the flat bot.Args bag the
// engine classifies: "!commands" carry command and rawInput, channel point messages
// carry rewardId, cheers carry bits, and subscription notices carry the tier, months and
// gift fields. Events are handed to a single worker so they are executed in arrival
// order. Client also implements the message half of bot.Host through Say.
//
// Credentials: the IRC client needs a bot username and an OAuth token with
// chat:read/chat:edit scopes. When TWITCH_OAUTH_TOKEN is not provided the token stored
// for provider "twitch" in the oauth_tokens table is used, and it is re-read on every
// reconnect so refreshed tokens are picked up.
package chat
