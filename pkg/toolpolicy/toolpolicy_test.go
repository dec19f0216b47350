package toolpolicy

import "testing"

func fakeClock(start int64) func() int64 {
	t := start
	return func() int64 { return t }
}

func TestEvaluate_DeniesOnMatchedDenyRuleEvenIfLaterAllowMatches(t *testing.T) {
	e := NewEvaluator([]Rule{
		{Tool: "fs.delete", Effect: Deny},
		{Tool: "fs.*", Effect: Allow},
	})
	d := e.Evaluate(Context{Tool: "fs.delete"})
	if d.Allowed {
		t.Fatalf("expected deny, got %+v", d)
	}
}

func TestEvaluate_FirstMatchingAllowWins(t *testing.T) {
	e := NewEvaluator([]Rule{
		{Tool: "fs.read", Effect: Allow},
		{Tool: "fs.*", Effect: Deny},
	})
	d := e.Evaluate(Context{Tool: "fs.read"})
	if !d.Allowed || d.MatchedTool != "fs.read" {
		t.Fatalf("expected allow by fs.read, got %+v", d)
	}
}

func TestEvaluate_DefaultDenyWhenNothingMatches(t *testing.T) {
	e := NewEvaluator([]Rule{{Tool: "fs.read", Effect: Allow}})
	d := e.Evaluate(Context{Tool: "net.fetch"})
	if d.Allowed {
		t.Fatalf("expected default deny, got %+v", d)
	}
}

func TestEvaluate_HeartbeatOnlyCondition(t *testing.T) {
	e := NewEvaluator([]Rule{{Tool: "ping", Effect: Allow, Conditions: Conditions{HeartbeatOnly: true}}})

	denied := e.Evaluate(Context{Tool: "ping", Heartbeat: false})
	if denied.Allowed {
		t.Fatalf("expected deny without heartbeat, got %+v", denied)
	}

	allowed := e.Evaluate(Context{Tool: "ping", Heartbeat: true})
	if !allowed.Allowed {
		t.Fatalf("expected allow with heartbeat, got %+v", allowed)
	}
}

func TestEvaluate_SessionIDsCondition(t *testing.T) {
	e := NewEvaluator([]Rule{{Tool: "exec", Effect: Allow, Conditions: Conditions{SessionIDs: []string{"s1", "s2"}}}})

	if d := e.Evaluate(Context{Tool: "exec", SessionID: "s3"}); d.Allowed {
		t.Fatalf("expected deny for unlisted session, got %+v", d)
	}
	if d := e.Evaluate(Context{Tool: "exec", SessionID: "s1"}); !d.Allowed {
		t.Fatalf("expected allow for listed session, got %+v", d)
	}
}

func TestEvaluate_ChannelsCondition(t *testing.T) {
	e := NewEvaluator([]Rule{{Tool: "notify", Effect: Allow, Conditions: Conditions{Channels: []string{"ops"}}}})

	if d := e.Evaluate(Context{Tool: "notify", Channel: "random"}); d.Allowed {
		t.Fatalf("expected deny for unlisted channel, got %+v", d)
	}
	if d := e.Evaluate(Context{Tool: "notify", Channel: "ops"}); !d.Allowed {
		t.Fatalf("expected allow for listed channel, got %+v", d)
	}
}

func TestEvaluate_SandboxOnlyCondition(t *testing.T) {
	e := NewEvaluator([]Rule{{Tool: "compile", Effect: Allow, Conditions: Conditions{SandboxOnly: true}}})

	if d := e.Evaluate(Context{Tool: "compile", Sandbox: false}); d.Allowed {
		t.Fatalf("expected deny outside sandbox, got %+v", d)
	}
	if d := e.Evaluate(Context{Tool: "compile", Sandbox: true}); !d.Allowed {
		t.Fatalf("expected allow inside sandbox, got %+v", d)
	}
}

func TestEvaluate_CombinedConditionsAllANDed(t *testing.T) {
	e := NewEvaluator([]Rule{{
		Tool: "deploy",
		Effect: Allow,
		Conditions: Conditions{
			SandboxOnly: true,
			Channels:    []string{"ops"},
			SessionIDs:  []string{"s1"},
		},
	}})

	partial := e.Evaluate(Context{Tool: "deploy", Sandbox: true, Channel: "ops", SessionID: "wrong"})
	if partial.Allowed {
		t.Fatalf("expected deny when one condition fails, got %+v", partial)
	}

	full := e.Evaluate(Context{Tool: "deploy", Sandbox: true, Channel: "ops", SessionID: "s1"})
	if !full.Allowed {
		t.Fatalf("expected allow when all conditions satisfied, got %+v", full)
	}
}

func TestEvaluate_RateLimitRejectsAfterThreshold(t *testing.T) {
	e := NewEvaluator([]Rule{{
		Tool:       "search",
		Effect:     Allow,
		Conditions: Conditions{HasRateLimit: true, RateLimitPerMinute: 2},
	}}).WithClock(fakeClock(1000))

	d1 := e.Evaluate(Context{Tool: "search"})
	d2 := e.Evaluate(Context{Tool: "search"})
	d3 := e.Evaluate(Context{Tool: "search"})

	if !d1.Allowed || !d2.Allowed {
		t.Fatalf("expected first two allowed, got %+v %+v", d1, d2)
	}
	if d3.Allowed {
		t.Fatalf("expected third rejected by rate limit, got %+v", d3)
	}
}

func TestEvaluate_RateLimitWindowSlidesAfter60Seconds(t *testing.T) {
	clock := int64(1000)
	e := NewEvaluator([]Rule{{
		Tool:       "search",
		Effect:     Allow,
		Conditions: Conditions{HasRateLimit: true, RateLimitPerMinute: 1},
	}}).WithClock(func() int64 { return clock })

	d1 := e.Evaluate(Context{Tool: "search"})
	d2 := e.Evaluate(Context{Tool: "search"})
	if !d1.Allowed || d2.Allowed {
		t.Fatalf("expected d1 allowed, d2 denied, got %+v %+v", d1, d2)
	}

	clock += 61_000
	d3 := e.Evaluate(Context{Tool: "search"})
	if !d3.Allowed {
		t.Fatalf("expected allow after window slides, got %+v", d3)
	}
}

func TestReload_ClearsRateCountersAndReplacesRules(t *testing.T) {
	e := NewEvaluator([]Rule{{
		Tool:       "search",
		Effect:     Allow,
		Conditions: Conditions{HasRateLimit: true, RateLimitPerMinute: 1},
	}}).WithClock(fakeClock(1000))

	e.Evaluate(Context{Tool: "search"})
	if d := e.Evaluate(Context{Tool: "search"}); d.Allowed {
		t.Fatalf("expected second call rejected before reload, got %+v", d)
	}

	e.Reload([]Rule{{
		Tool:       "search",
		Effect:     Allow,
		Conditions: Conditions{HasRateLimit: true, RateLimitPerMinute: 1},
	}})

	if d := e.Evaluate(Context{Tool: "search"}); !d.Allowed {
		t.Fatalf("expected allow after reload clears counters, got %+v", d)
	}
}

func TestReload_DropsRemovedRule(t *testing.T) {
	e := NewEvaluator([]Rule{{Tool: "fs.read", Effect: Allow}})
	if d := e.Evaluate(Context{Tool: "fs.read"}); !d.Allowed {
		t.Fatalf("expected allow before reload, got %+v", d)
	}

	e.Reload([]Rule{{Tool: "fs.write", Effect: Allow}})
	if d := e.Evaluate(Context{Tool: "fs.read"}); d.Allowed {
		t.Fatalf("expected default deny after rule removed by reload, got %+v", d)
	}
}
