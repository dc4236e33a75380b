// Package firewallevent is an event evaluator that flags firewall rules
// insecurely exposing sensitive ports to the entire Internet.
package firewallevent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/firewallevent.FirewallRuleEvent", New)
}

var defaultPorts = []string{"22", "3389", "1433", "1521", "3306", "5432"}

// FirewallRuleEvent flags firewall_rule records that are enabled,
// inbound, allow, TCP (or "all"), open to 0.0.0.0/0, and that expose at
// least one of the configured ports.
type FirewallRuleEvent struct {
	ports map[int]struct{}
}

// New constructs a FirewallRuleEvent from its descriptor params: ports
// (list of strings; default 22, 3389, 1433, 1521, 3306, 5432).
func New(params map[string]interface{}) (interface{}, error) {
	tokens := defaultPorts
	if v, ok := params["ports"].([]interface{}); ok && len(v) > 0 {
		tokens = make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				tokens = append(tokens, s)
			}
		}
	}
	return &FirewallRuleEvent{ports: ExpandPortRanges(tokens)}, nil
}

// Eval implements plugin.EventEvaluator.
func (f *FirewallRuleEvent) Eval(ctx context.Context, rec record.Record) (plugin.RecordCursor, error) {
	if rec.Ext["record_type"] != "firewall_rule" {
		return plugin.EmptyCursor, nil
	}
	if enabled, _ := rec.Ext["enabled"].(bool); !enabled {
		return plugin.EmptyCursor, nil
	}
	if direction, _ := rec.Ext["direction"].(string); direction != "in" {
		return plugin.EmptyCursor, nil
	}
	if access, _ := rec.Ext["access"].(string); access != "allow" {
		return plugin.EmptyCursor, nil
	}
	protocol, _ := rec.Ext["protocol"].(string)
	if protocol != "tcp" && protocol != "all" {
		return plugin.EmptyCursor, nil
	}
	if !exposesInternet(rec.Ext["source_addresses"]) {
		return plugin.EmptyCursor, nil
	}

	destPorts := stringSlice(rec.Ext["destination_ports"])
	exposed := intersect(f.ports, ExpandPortRanges(destPorts))
	if len(exposed) == 0 {
		return plugin.EmptyCursor, nil
	}

	cloudType, _ := rec.Ext["cloud_type"].(string)
	reference, _ := rec.Ext["reference"].(string)
	description := fmt.Sprintf("%s firewall rule %s exposes ports %s to the entire Internet.",
		cloudType, reference, joinPorts(exposed))
	recommendation := fmt.Sprintf("Check %s firewall rule %s and update rules to restrict access to ports %s.",
		cloudType, reference, joinPorts(exposed))

	derived := record.New()
	derived.Ext["record_type"] = "firewall_rule_event"
	derived.Ext["cloud_type"] = cloudType
	derived.Ext["reference"] = reference
	derived.Ext["exposed_ports"] = exposed
	derived.Ext["description"] = description
	derived.Ext["recommendation"] = recommendation
	return plugin.NewSliceCursor([]record.Record{derived}), nil
}

// Done implements plugin.EventEvaluator.
func (f *FirewallRuleEvent) Done() {}

func exposesInternet(v interface{}) bool {
	for _, addr := range stringSlice(v) {
		if addr == "0.0.0.0/0" {
			return true
		}
	}
	return false
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intersect(a, b map[int]struct{}) []int {
	var out []int
	for p := range a {
		if _, ok := b[p]; ok {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ", ")
}
