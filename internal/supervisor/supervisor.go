// Package supervisor runs the configured set of audits concurrently,
// bracketed by a run-level start/end notification, and isolates audits
// from each other so one panicking audit never cancels its siblings
// (spec.md §4.6).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwarden/cloudwarden/internal/audit"
	"github.com/cloudwarden/cloudwarden/internal/auditrunner"
	"github.com/cloudwarden/cloudwarden/internal/config"
	"github.com/cloudwarden/cloudwarden/internal/metrics"
	"github.com/cloudwarden/cloudwarden/internal/notify"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/rs/zerolog"
)

// RunOnce resolves every audit key in cfg.Run against cfg.Audits/
// cfg.Plugins, runs them concurrently, and waits for all to finish. It
// returns the first plugin-resolution error encountered while building
// audit specs (a configuration error, fatal at startup per spec.md §7);
// failures during the runs themselves are isolated per audit and only
// logged, never returned.
func RunOnce(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	specs := make([]auditrunner.Spec, 0, len(cfg.Run))
	for _, key := range cfg.Run {
		auditCfg, ok := cfg.Audits[key]
		if !ok {
			return fmt.Errorf("supervisor: run references undefined audit %q", key)
		}
		spec, err := buildSpec(key, auditCfg, cfg.Plugins)
		if err != nil {
			return fmt.Errorf("supervisor: audit %q: %w", key, err)
		}
		specs = append(specs, spec)
	}

	notifier := notify.New(cfg.NotifyConfig())
	subject := runSubject(cfg.Run)
	startedAt := time.Now()
	if err := notifier.Start(subject, startedAt); err != nil {
		log.Error().Err(err).Msg("run-level start notification failed")
	}

	var wg sync.WaitGroup
	for _, spec := range specs {
		wg.Add(1)
		go func(spec auditrunner.Spec) {
			defer wg.Done()
			metrics.AuditsRunning.Inc()
			defer metrics.AuditsRunning.Dec()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("audit_key", spec.AuditKey).Msg("audit run panicked")
				}
			}()
			if err := auditrunner.Run(ctx, spec, notifier, log); err != nil {
				log.Error().Err(err).Str("audit_key", spec.AuditKey).Msg("audit run failed")
			}
		}(spec)
	}
	wg.Wait()

	endedAt := time.Now()
	if err := notifier.End(subject, startedAt, endedAt); err != nil {
		log.Error().Err(err).Msg("run-level end notification failed")
	}
	return nil
}

func runSubject(keys []string) string {
	if len(keys) == 1 {
		return keys[0]
	}
	return "all audits"
}

func buildSpec(key string, auditCfg config.AuditConfig, plugins map[string]pluginloader.Descriptor) (auditrunner.Spec, error) {
	clouds, err := buildRefs(auditCfg.Clouds, plugins)
	if err != nil {
		return auditrunner.Spec{}, err
	}
	events, err := buildRefs(auditCfg.Events, plugins)
	if err != nil {
		return auditrunner.Spec{}, err
	}
	stores, err := buildRefs(auditCfg.Stores, plugins)
	if err != nil {
		return auditrunner.Spec{}, err
	}
	alerts, err := buildRefs(auditCfg.Alerts, plugins)
	if err != nil {
		return auditrunner.Spec{}, err
	}
	return auditrunner.Spec{
		AuditKey: key,
		Clouds:   clouds,
		Events:   events,
		Stores:   stores,
		Alerts:   alerts,
	}, nil
}

func buildRefs(keys []string, plugins map[string]pluginloader.Descriptor) ([]audit.PluginRef, error) {
	refs := make([]audit.PluginRef, 0, len(keys))
	for _, key := range keys {
		desc, ok := plugins[key]
		if !ok {
			return nil, fmt.Errorf("plugin key %q not declared in plugins", key)
		}
		instance, err := pluginloader.New(desc)
		if err != nil {
			return nil, fmt.Errorf("plugin key %q: %w", key, err)
		}
		refs = append(refs, audit.PluginRef{Key: key, Class: desc.Class, Instance: instance})
	}
	return refs, nil
}
