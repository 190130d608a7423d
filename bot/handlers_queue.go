package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/ledger"
	"github.com/onnwee/tank-queue/store"
	"github.com/onnwee/tank-queue/telemetry"
)

func countRejection(reason string) {
	if telemetry.QueueRejections != nil {
		telemetry.QueueRejections.WithLabelValues(reason).Inc()
	}
}

func countAdmission(lane ledger.Lane, c ledger.Category) {
	if telemetry.QueueAdmissions != nil {
		name := "normal"
		if lane == ledger.LaneSupporter {
			name = "supporter"
		}
		telemetry.QueueAdmissions.WithLabelValues(name, string(c)).Inc()
	}
}

// admittedTemplate picks the supporter reply for category c.
func admittedTemplate(m config.Messages, c ledger.Category) string {
	switch c {
	case ledger.CategoryArty:
		return m.ArtyAdded
	case ledger.CategoryBlacklist:
		return m.BlacklistAdded
	case ledger.CategoryTroll:
		return m.TrollAdded
	}
	return m.SupporterAdded
}

func (e *Engine) handleRedeem(ctx context.Context, r *run, ev RedeemRequest) error {
	pending := ledger.QueueItem{RewardID: ev.RewardID, RedemptionID: ev.RedemptionID}
	req, err := r.settings.Parser().Parse(ev.Raw, ev.Lane == ledger.LaneNormal)
	if err != nil {
		countRejection("parse")
		r.fx.cancel = append(r.fx.cancel, pending)
		r.fx.say(r.msgs.Error, "user", ev.Caller.UserName, "error", parseErrorText(r, err))
		e.flush(ctx, r, nil)
		return nil
	}

	item := ledger.QueueItem{
		ID:           e.newID(),
		User:         ev.Caller.UserName,
		Tank:         req.Name,
		Mult:         1,
		AdmittedAt:   e.now(),
		Raw:          ev.Raw,
		RedemptionID: ev.RedemptionID,
		RewardID:     ev.RewardID,
		SpecialType:  ledger.CategoryNormal,
	}

	if ev.Lane == ledger.LaneNormal {
		// normal requests are free: a category code is kept for display only
		item.SpecialType = req.Category
		return e.update(ctx, r, func(st *ledger.State) error {
			ledger.AddToNormalQueue(st, item)
			countAdmission(ledger.LaneNormal, item.SpecialType)
			r.fx.say(r.msgs.NormalAdded, "user", item.User, "tank", completedText(item))
			r.fx.render = true
			return nil
		})
	}

	item.Mult, item.SpecialType = req.Cost, req.Category
	return e.update(ctx, r, func(st *ledger.State) error {
		mergeCaller(ctx, st, ev.Caller)
		u := st.UserFor(callerKey(ev.Caller), ev.Caller.UserName)
		balance := r.ledger.ActiveBalance(u)
		if !r.ledger.Consume(u, req.Cost) {
			countRejection("insufficient_tokens")
			r.fx.cancel = append(r.fx.cancel, pending)
			r.fx.say(r.msgs.NotEnoughTokens, "user", ev.Caller.UserName, "balance", balance, "cost", req.Cost)
			return store.ErrNoChange
		}
		if telemetry.TokensConsumed != nil {
			telemetry.TokensConsumed.Add(float64(req.Cost))
		}
		ledger.AddToSupporterQueue(st, item)
		countAdmission(ledger.LaneSupporter, item.SpecialType)
		r.fx.fulfill = append(r.fx.fulfill, item)
		r.fx.say(admittedTemplate(r.msgs, item.SpecialType),
			"user", item.User, "tank", item.Tank, "cost", item.Mult, "balance", r.ledger.ActiveBalance(u))
		r.fx.render = true
		return nil
	})
}

func (e *Engine) handleManualEnqueue(ctx context.Context, r *run, ev ManualEnqueue) error {
	if !ev.Caller.Privileged {
		r.fx.say(r.msgs.ModOnly, "user", ev.Caller.UserName)
		e.flush(ctx, r, nil)
		return nil
	}
	usage := r.msgs.UsageQueueNormal
	if ev.Lane == ledger.LaneSupporter {
		usage = r.msgs.UsageQueueSupporter
	}

	raw, target := strings.TrimSpace(ev.Raw), ""
	if ev.Lane == ledger.LaneSupporter {
		if f := strings.Fields(raw); len(f) > 0 && strings.HasPrefix(f[0], "@") {
			target = strings.TrimPrefix(f[0], "@")
			raw = strings.TrimSpace(strings.TrimPrefix(raw, f[0]))
		}
	}
	if raw == "" {
		r.fx.say(usage, "user", ev.Caller.UserName)
		e.flush(ctx, r, nil)
		return nil
	}
	req, err := r.settings.Parser().Parse(raw, ev.Lane == ledger.LaneNormal)
	if err != nil {
		r.fx.say(r.msgs.Error, "user", ev.Caller.UserName, "error", parseErrorText(r, err))
		e.flush(ctx, r, nil)
		return nil
	}

	item := ledger.QueueItem{
		ID:          e.newID(),
		User:        ev.Caller.UserName,
		Tank:        req.Name,
		Mult:        1,
		AdmittedAt:  e.now(),
		Raw:         ev.Raw,
		SpecialType: ledger.CategoryNormal,
	}
	if ev.Lane == ledger.LaneNormal {
		item.SpecialType = req.Category
		return e.update(ctx, r, func(st *ledger.State) error {
			ledger.AddToNormalQueue(st, item)
			countAdmission(ledger.LaneNormal, item.SpecialType)
			r.fx.say(r.msgs.ManualNormalAdded, "user", item.User, "tank", completedText(item))
			r.fx.render = true
			return nil
		})
	}

	item.Mult, item.SpecialType = req.Cost, req.Category
	return e.update(ctx, r, func(st *ledger.State) error {
		if target != "" {
			_, u, ok := st.FindUserByName(target)
			if !ok {
				r.fx.say(r.msgs.UserNotFound, "user", ev.Caller.UserName, "target", target)
				return store.ErrNoChange
			}
			balance := r.ledger.ActiveBalance(u)
			if !r.ledger.Consume(u, req.Cost) {
				countRejection("insufficient_tokens")
				r.fx.say(r.msgs.TargetNotEnoughTokens, "target", u.UserName, "balance", balance, "cost", req.Cost)
				return store.ErrNoChange
			}
			if telemetry.TokensConsumed != nil {
				telemetry.TokensConsumed.Add(float64(req.Cost))
			}
			item.User = u.UserName
		}
		ledger.AddToSupporterQueue(st, item)
		countAdmission(ledger.LaneSupporter, item.SpecialType)
		kind := ""
		if item.SpecialType.Special() {
			kind = "(" + string(item.SpecialType) + ")"
		}
		r.fx.say(r.msgs.ManualSupporterAdded, "user", item.User, "tank", item.Tank, "cost", item.Mult, "type", kind)
		r.fx.render = true
		telemetry.LoggerWithCorr(ctx).Info("manual supporter request", slog.String("by", ev.Caller.UserName),
			slog.String("user", item.User), slog.String("tank", item.Tank), slog.String("component", "bot"))
		return nil
	})
}

// completedText is how a dequeued item is announced.
func completedText(it ledger.QueueItem) string {
	if it.SpecialType.Special() {
		return it.Tank + " [" + strings.ToUpper(string(it.SpecialType)) + "]"
	}
	if it.Mult > 1 {
		return it.Tank + " x" + strconv.Itoa(it.Mult)
	}
	return it.Tank
}

func (e *Engine) handleQueueControl(ctx context.Context, r *run, ev QueueControl) error {
	if !ev.Trusted && !ev.Caller.Privileged {
		r.fx.say(r.msgs.ModOnly, "user", ev.Caller.UserName)
		e.flush(ctx, r, nil)
		return nil
	}
	switch ev.Op {
	case OpDequeue:
		return e.update(ctx, r, func(st *ledger.State) error {
			it, lane, ok := ledger.DequeueTop(st)
			if !ok {
				r.fx.say(r.msgs.QueueEmpty)
				return store.ErrNoChange
			}
			if lane == ledger.LaneNormal {
				r.fx.fulfill = append(r.fx.fulfill, it)
			}
			r.fx.say(r.msgs.Completed, "user", it.User, "type", lane.String(), "tank", completedText(it))
			r.fx.render = true
			return nil
		})
	case OpRefundTop:
		return e.update(ctx, r, func(st *ledger.State) error {
			it, ok := ledger.RefundTopNormal(st)
			if !ok {
				return store.ErrNoChange
			}
			r.fx.cancel = append(r.fx.cancel, it)
			r.fx.say(r.msgs.RefundedNormal, "user", it.User, "tank", it.Tank)
			r.fx.render = true
			return nil
		})
	case OpRefundAll:
		return e.update(ctx, r, func(st *ledger.State) error {
			items := ledger.RefundAllNormal(st)
			if len(items) == 0 {
				r.fx.say(r.msgs.NoNormalRequests)
				return store.ErrNoChange
			}
			r.fx.cancel = append(r.fx.cancel, items...)
			r.fx.say(r.msgs.RefundedAllNormal, "count", len(items))
			r.fx.render = true
			return nil
		})
	case OpRender:
		st, err := e.Store.View(ctx)
		if err != nil {
			return err
		}
		e.render(ctx, r.settings, st)
		telemetry.LoggerWithCorr(ctx).Info("overlay rendered", slog.String("path", r.settings.QueueHTMLPath), slog.String("component", "bot"))
		return nil
	case OpReset:
		if err := e.Store.Reset(ctx); err != nil {
			return err
		}
		telemetry.LoggerWithCorr(ctx).Warn("ledger state reset", slog.String("by", ev.Caller.UserName), slog.String("component", "bot"))
		r.fx.say(r.msgs.QueueReset)
		r.fx.render = true
		e.flush(ctx, r, ledger.NewState())
		return nil
	}
	telemetry.LoggerWithCorr(ctx).Warn("unknown queue operation", slog.String("op", string(ev.Op)), slog.String("component", "bot"))
	return nil
}
