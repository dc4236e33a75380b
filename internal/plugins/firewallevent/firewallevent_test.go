package firewallevent

import (
	"context"
	"testing"

	"github.com/cloudwarden/cloudwarden/internal/record"
)

func exposedRule() record.Record {
	rec := record.New()
	rec.Ext["record_type"] = "firewall_rule"
	rec.Ext["enabled"] = true
	rec.Ext["direction"] = "in"
	rec.Ext["access"] = "allow"
	rec.Ext["protocol"] = "tcp"
	rec.Ext["source_addresses"] = []interface{}{"0.0.0.0/0"}
	rec.Ext["destination_ports"] = []interface{}{"22", "443"}
	rec.Ext["cloud_type"] = "azure"
	rec.Ext["reference"] = "rule-1"
	return rec
}

func TestEvalFlagsInsecureExposure(t *testing.T) {
	inst, _ := New(nil)
	f := inst.(*FirewallRuleEvent)

	cursor, err := f.Eval(context.Background(), exposedRule())
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	derived, more, err := cursor.Next(context.Background())
	if err != nil || !more {
		t.Fatalf("expected one event record, got more=%v err=%v", more, err)
	}
	if derived.Ext["record_type"] != "firewall_rule_event" {
		t.Fatalf("derived.Ext = %v", derived.Ext)
	}
}

func TestEvalIgnoresDisabledRule(t *testing.T) {
	inst, _ := New(nil)
	f := inst.(*FirewallRuleEvent)

	rec := exposedRule()
	rec.Ext["enabled"] = false

	cursor, _ := f.Eval(context.Background(), rec)
	_, more, _ := cursor.Next(context.Background())
	if more {
		t.Fatal("expected no event for a disabled rule")
	}
}

func TestEvalIgnoresNonInternetSource(t *testing.T) {
	inst, _ := New(nil)
	f := inst.(*FirewallRuleEvent)

	rec := exposedRule()
	rec.Ext["source_addresses"] = []interface{}{"10.0.0.0/8"}

	cursor, _ := f.Eval(context.Background(), rec)
	_, more, _ := cursor.Next(context.Background())
	if more {
		t.Fatal("expected no event when source is not the entire Internet")
	}
}

func TestEvalIgnoresNonMatchingPorts(t *testing.T) {
	inst, _ := New(map[string]interface{}{"ports": []interface{}{"9000"}})
	f := inst.(*FirewallRuleEvent)

	cursor, _ := f.Eval(context.Background(), exposedRule())
	_, more, _ := cursor.Next(context.Background())
	if more {
		t.Fatal("expected no event when no configured port is exposed")
	}
}

func TestEvalIgnoresOtherRecordTypes(t *testing.T) {
	inst, _ := New(nil)
	f := inst.(*FirewallRuleEvent)

	rec := record.New()
	rec.Ext["record_type"] = "something_else"

	cursor, _ := f.Eval(context.Background(), rec)
	_, more, _ := cursor.Next(context.Background())
	if more {
		t.Fatal("expected no event for unrelated record types")
	}
}
