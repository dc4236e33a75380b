// Package vmextensionevent is an event evaluator that flags virtual
// machines whose installed extensions violate a required, blacklisted, or
// whitelisted extension-name policy.
package vmextensionevent

import (
	"context"
	"fmt"
	"sort"

	"github.com/IGLOU-EU/go-wildcard/v2"

	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/vmextensionevent.VMExtensionEvent", New)
}

// VMExtensionEvent evaluates vm_instance_view records against a
// required/blacklisted/whitelisted extension-name policy. Any of the three
// lists may be empty, in which case that check is skipped. Entries may use
// glob patterns (e.g. "Microsoft.*").
type VMExtensionEvent struct {
	required    []string
	blacklisted []string
	whitelisted []string
}

// New constructs a VMExtensionEvent from its descriptor params: required,
// blacklisted, whitelisted (each a list of strings; all default to empty,
// meaning the corresponding check is skipped).
func New(params map[string]interface{}) (interface{}, error) {
	return &VMExtensionEvent{
		required:    stringList(params["required"]),
		blacklisted: stringList(params["blacklisted"]),
		whitelisted: stringList(params["whitelisted"]),
	}, nil
}

// Eval implements plugin.EventEvaluator.
func (v *VMExtensionEvent) Eval(ctx context.Context, rec record.Record) (plugin.RecordCursor, error) {
	if rec.Ext["record_type"] != "vm_instance_view" {
		return plugin.EmptyCursor, nil
	}

	installed := stringList(rec.Ext["extensions"])
	cloudType, _ := rec.Ext["cloud_type"].(string)
	reference, _ := rec.Ext["reference"].(string)

	var derived []record.Record

	if len(v.blacklisted) > 0 {
		if hit := matchAny(installed, v.blacklisted); len(hit) > 0 {
			derived = append(derived, v.event(rec, "vm_blacklisted_extension_event", cloudType, reference,
				fmt.Sprintf("%s virtual machine %s has blacklisted extensions %v", cloudType, reference, hit),
				fmt.Sprintf("Check %s virtual machine %s and remove blacklisted extensions %v", cloudType, reference, hit),
				hit))
		}
	}

	if len(v.whitelisted) > 0 {
		var unapproved []string
		for _, ext := range installed {
			if !matches(ext, v.whitelisted) || matches(ext, v.blacklisted) {
				unapproved = append(unapproved, ext)
			}
		}
		sort.Strings(unapproved)
		if len(unapproved) > 0 {
			derived = append(derived, v.event(rec, "vm_unapproved_extension_event", cloudType, reference,
				fmt.Sprintf("%s virtual machine %s has unapproved extensions %v", cloudType, reference, unapproved),
				fmt.Sprintf("Check %s virtual machine %s and remove unapproved extensions %v", cloudType, reference, unapproved),
				unapproved))
		}
	}

	if len(v.required) > 0 {
		var missing []string
		for _, req := range v.required {
			if matches(req, v.blacklisted) {
				continue
			}
			if !matchAnyInstalled(req, installed) {
				missing = append(missing, req)
			}
		}
		sort.Strings(missing)
		if len(missing) > 0 {
			derived = append(derived, v.event(rec, "vm_required_extension_event", cloudType, reference,
				fmt.Sprintf("%s virtual machine %s is missing required extensions %v", cloudType, reference, missing),
				fmt.Sprintf("Check %s virtual machine %s and add required extensions %v", cloudType, reference, missing),
				missing))
		}
	}

	if len(derived) == 0 {
		return plugin.EmptyCursor, nil
	}
	return plugin.NewSliceCursor(derived), nil
}

// Done implements plugin.EventEvaluator.
func (v *VMExtensionEvent) Done() {}

func (v *VMExtensionEvent) event(rec record.Record, recordType, cloudType, reference, description, recommendation string, names []string) record.Record {
	derived := record.New()
	for k, val := range rec.Ext {
		derived.Ext[k] = val
	}
	derived.Ext["record_type"] = recordType
	derived.Ext["cloud_type"] = cloudType
	derived.Ext["reference"] = reference
	derived.Ext["description"] = description
	derived.Ext["recommendation"] = recommendation
	derived.Ext["extensions"] = names
	return derived
}

// matches reports whether name matches any pattern in patterns, treating
// each pattern as a glob (wildcard.Match).
func matches(name string, patterns []string) bool {
	for _, p := range patterns {
		if wildcard.Match(p, name) {
			return true
		}
	}
	return false
}

// matchAny returns the subset of names that match any pattern in patterns,
// sorted and de-duplicated.
func matchAny(names, patterns []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		if matches(n, patterns) {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// matchAnyInstalled reports whether the required pattern req is satisfied
// by any installed extension name.
func matchAnyInstalled(req string, installed []string) bool {
	for _, ext := range installed {
		if wildcard.Match(req, ext) {
			return true
		}
	}
	return false
}

func stringList(v interface{}) []string {
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
