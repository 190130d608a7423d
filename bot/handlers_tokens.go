package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/ledger"
	"github.com/onnwee/tank-queue/store"
	"github.com/onnwee/tank-queue/telemetry"
)

const expiryLayout = "01.02. 15:04"

func (e *Engine) handleBalance(ctx context.Context, r *run, ev BalanceQuery) error {
	return e.update(ctx, r, func(st *ledger.State) error {
		mergeCaller(ctx, st, ev.Caller)

		var u *ledger.User
		lookup := ev.Caller.UserName
		if ev.Target != "" {
			_, found, ok := st.FindUserByName(ev.Target)
			if !ok {
				// a queued request without a wallet is still worth reporting
				if ledger.Position(st, ev.Target) == 0 {
					r.fx.say(r.msgs.UserNotFound, "user", ev.Caller.UserName, "target", ev.Target)
					return store.ErrNoChange
				}
				lookup = ev.Target
			} else {
				u, lookup = found, found.UserName
			}
		} else {
			u = st.Users[callerKey(ev.Caller)]
		}

		balance := r.ledger.ActiveBalance(u)
		target := ""
		if !strings.EqualFold(lookup, ev.Caller.UserName) {
			target = lookup + " "
		}
		queueInfo := e.queueInfo(r, ledger.Position(st, lookup))
		switch {
		case balance > 0:
			expiry := "-"
			if t, ok := r.ledger.NextExpiry(u); ok {
				expiry = t.In(e.location()).Format(expiryLayout)
			}
			r.fx.say(r.msgs.TankInfoBalance, "user", ev.Caller.UserName, "target", target, "balance", balance, "expiry", expiry, "queueInfo", queueInfo)
		case queueInfo != "":
			r.fx.say(r.msgs.TankInfoNoTokens, "user", ev.Caller.UserName, "target", target, "queueInfo", queueInfo)
		default:
			r.fx.say(r.msgs.TankInfoEmpty, "user", ev.Caller.UserName, "target", target)
		}
		return nil
	})
}

// queueInfo describes position pos: 1 is in battle, 2 is next, later positions wait for
// (pos-2) battles of BattleMinutes each.
func (e *Engine) queueInfo(r *run, pos int) string {
	switch {
	case pos <= 0:
		return ""
	case pos == 1:
		return config.Format(r.msgs.QueuePosActive, "pos", pos)
	case pos == 2:
		return config.Format(r.msgs.QueuePosSoon, "pos", pos)
	}
	return config.Format(r.msgs.QueuePosWait, "pos", pos, "eta", formatETA((pos-2)*r.settings.BattleMinutes))
}

func formatETA(minutes int) string {
	if minutes < 60 {
		return strconv.Itoa(minutes) + " min"
	}
	return strconv.Itoa(minutes/60) + " h " + strconv.Itoa(minutes%60) + " min"
}

func (e *Engine) location() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.Local
}

func (e *Engine) handleHelp(ctx context.Context, r *run) error {
	s := r.settings
	r.fx.say(r.msgs.HelpLine1,
		"tier1", s.TierTokens[0], "tier2", s.TierTokens[1], "tier3", s.TierTokens[2],
		"bitsPerToken", s.BitsPerToken, "tipPerToken", strconv.FormatFloat(s.TipPerToken, 'f', -1, 64))
	r.fx.say(r.msgs.HelpLine2,
		"ttlHours", s.TTLHours(), "costArty", s.CostArty, "costBlacklist", s.CostBlacklist, "costTroll", s.CostTroll)
	e.flush(ctx, r, nil)
	return nil
}

func (e *Engine) handleCredit(ctx context.Context, r *run, ev Support) error {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bot"))
	if ev.Name == "" {
		log.Warn("support event without a user name, not credited", slog.Any("keys", ev.Keys))
		return nil
	}
	tokens := r.settings.Rates().Tokens(ev.Event)
	log.Info("support event", slog.String("user", ev.Name), slog.String("source", string(ev.Event.Source)),
		slog.String("type", string(ev.Event.Type)), slog.Int("tier", ev.Event.Tier), slog.Int("tokens", tokens))
	if tokens <= 0 {
		if ev.Event.Source == ledger.SourceTipService {
			log.Warn("tip credited no tokens", slog.String("user", ev.Name), slog.Float64("amount", ev.Event.TipAmount))
		}
		return nil
	}

	id := ledger.ProvisionalName(ledger.ProvisionalTipService, ev.Name)
	if ev.UserID != "" {
		id = ledger.DurableID(ev.UserID)
	}
	return e.update(ctx, r, func(st *ledger.State) error {
		mergeCaller(ctx, st, Caller{UserID: ev.UserID, UserName: ev.Name})
		u := st.UserFor(id.Key(), ev.Name)
		r.ledger.Credit(u, tokens, ledger.SourceCredit)
		if telemetry.TokensCredited != nil {
			telemetry.TokensCredited.WithLabelValues(string(ev.Event.Source)).Add(float64(tokens))
		}
		r.fx.say(r.msgs.TokensCredited, "user", ev.Name, "amount", tokens, "balance", r.ledger.ActiveBalance(u))
		return nil
	})
}

// parseAdjust reads "<amount>" (self) or "<user> <amount>". Amounts run from 1 to
// ledger.MaxGrant.
func parseAdjust(raw string) (target string, amount int, ok bool) {
	f := strings.Fields(raw)
	if len(f) == 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(f[len(f)-1])
	if err != nil || n <= 0 || n > ledger.MaxGrant {
		return "", 0, false
	}
	if len(f) == 1 {
		return "", n, true
	}
	return strings.TrimPrefix(f[0], "@"), n, true
}

func (e *Engine) handleAdjust(ctx context.Context, r *run, ev AdminAdjust) error {
	if !ev.Caller.Privileged {
		r.fx.say(r.msgs.ModOnly, "user", ev.Caller.UserName)
		e.flush(ctx, r, nil)
		return nil
	}
	target, amount, ok := parseAdjust(ev.Raw)
	if !ok {
		usage := r.msgs.UsageRemoveTokens
		if ev.Add {
			usage = r.msgs.UsageAddTokens
		}
		r.fx.say(usage, "user", ev.Caller.UserName)
		e.flush(ctx, r, nil)
		return nil
	}

	return e.update(ctx, r, func(st *ledger.State) error {
		mergeCaller(ctx, st, ev.Caller)
		var (
			u    *ledger.User
			name = ev.Caller.UserName
		)
		if target == "" {
			u = st.Users[callerKey(ev.Caller)]
			if u == nil && ev.Add {
				u = st.UserFor(callerKey(ev.Caller), name)
			}
		} else if _, found, ok := st.FindUserByName(target); ok {
			u, name = found, found.UserName
		} else if ev.Add {
			name = target
			u = st.UserFor(ledger.ProvisionalName(ledger.ProvisionalManual, target).Key(), target)
		}
		if u == nil {
			if target == "" {
				target = ev.Caller.UserName
			}
			r.fx.say(r.msgs.UserNotFound, "user", ev.Caller.UserName, "target", target)
			return store.ErrNoChange
		}
		if u.UserName == "" {
			u.UserName = name
		}

		if ev.Add {
			r.ledger.Credit(u, amount, ledger.SourceManual)
			if telemetry.TokensCredited != nil {
				telemetry.TokensCredited.WithLabelValues(ledger.SourceManual).Add(float64(amount))
			}
			r.fx.say(r.msgs.TokensAdded, "user", name, "amount", amount, "balance", r.ledger.ActiveBalance(u))
		} else {
			removed := r.ledger.Remove(u, amount)
			if telemetry.TokensRemoved != nil {
				telemetry.TokensRemoved.Add(float64(removed))
			}
			r.fx.say(r.msgs.TokensRemoved, "user", name, "amount", removed, "balance", r.ledger.ActiveBalance(u))
		}
		telemetry.LoggerWithCorr(ctx).Info("tokens adjusted", slog.String("by", ev.Caller.UserName), slog.String("user", name),
			slog.Bool("add", ev.Add), slog.Int("amount", amount), slog.String("component", "bot"))
		return nil
	})
}
