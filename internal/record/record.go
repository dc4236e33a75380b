// Package record defines the envelope that flows end-to-end through the
// audit pipeline: a raw provider payload, normalized extended fields, and
// progressively populated cross-provider bookkeeping.
package record

import "github.com/cloudwarden/cloudwarden/internal/merge"

// OriginType identifies which plugin role produced a record.
type OriginType string

const (
	OriginCloud OriginType = "cloud"
	OriginEvent OriginType = "event"
)

// TargetType identifies which plugin role consumed a record.
type TargetType string

const (
	TargetStore TargetType = "store"
	TargetAlert TargetType = "alert"
)

// RecordType carries the control markers that frame an audit run. Any
// other value (including empty) denotes an ordinary data record.
type RecordType string

const (
	RecordTypeBeginAudit RecordType = "begin_audit"
	RecordTypeEndAudit   RecordType = "end_audit"
)

// Com holds the cross-provider fields the engine writes progressively as a
// record passes through workers, plus any evaluator-supplied fields the
// engine does not know about by name (Extra).
type Com struct {
	AuditKey     string                 `json:"audit_key,omitempty"`
	AuditVersion string                 `json:"audit_version,omitempty"`
	OriginKey    string                 `json:"origin_key,omitempty"`
	OriginClass  string                 `json:"origin_class,omitempty"`
	OriginWorker string                 `json:"origin_worker,omitempty"`
	OriginType   OriginType             `json:"origin_type,omitempty"`
	TargetKey    string                 `json:"target_key,omitempty"`
	TargetClass  string                 `json:"target_class,omitempty"`
	TargetWorker string                 `json:"target_worker,omitempty"`
	TargetType   TargetType             `json:"target_type,omitempty"`
	RecordType   RecordType             `json:"record_type,omitempty"`
	Extra        map[string]interface{} `json:"-"`
}

// Record is the single value type carried on the pipeline.
type Record struct {
	Raw map[string]interface{} `json:"raw,omitempty"`
	Ext map[string]interface{} `json:"ext,omitempty"`
	Com Com                    `json:"com,omitempty"`
}

// New returns a Record with initialized Raw/Ext/Com.Extra maps.
func New() Record {
	return Record{
		Raw: map[string]interface{}{},
		Ext: map[string]interface{}{},
		Com: Com{Extra: map[string]interface{}{}},
	}
}

// IsControl reports whether r is a begin_audit/end_audit framing marker.
func (r Record) IsControl() bool {
	return r.Com.RecordType == RecordTypeBeginAudit || r.Com.RecordType == RecordTypeEndAudit
}

// BeginAudit returns a begin_audit control record.
func BeginAudit() Record {
	rec := New()
	rec.Com.RecordType = RecordTypeBeginAudit
	return rec
}

// EndAudit returns an end_audit control record.
func EndAudit() Record {
	rec := New()
	rec.Com.RecordType = RecordTypeEndAudit
	return rec
}

// Identity names the owner of a worker for bookkeeping purposes.
type Identity struct {
	AuditKey     string
	AuditVersion string
	PluginKey    string
	PluginClass  string
}

// WorkerName is the audit_key + "_" + plugin_key convention used for
// origin_worker/target_worker.
func (id Identity) WorkerName() string {
	return id.AuditKey + "_" + id.PluginKey
}

// EnrichOrigin deep-merges the engine's cloud/event bookkeeping into rec's
// Com, without overwriting an evaluator-supplied value of the same
// semantic meaning except the engine's own bookkeeping fields. It returns
// a new Record; rec is not mutated.
func EnrichOrigin(rec Record, id Identity, origin OriginType) Record {
	merged := mergeExtra(rec.Com.Extra, nil)
	rec.Com.Extra = merged
	rec.Com.AuditKey = id.AuditKey
	rec.Com.AuditVersion = id.AuditVersion
	rec.Com.OriginKey = id.PluginKey
	rec.Com.OriginClass = id.PluginClass
	rec.Com.OriginWorker = id.WorkerName()
	rec.Com.OriginType = origin
	return rec
}

// EnrichTarget deep-merges the engine's store/alert bookkeeping into rec's
// Com on sink ingress.
func EnrichTarget(rec Record, id Identity, target TargetType) Record {
	merged := mergeExtra(rec.Com.Extra, nil)
	rec.Com.Extra = merged
	rec.Com.AuditKey = id.AuditKey
	rec.Com.AuditVersion = id.AuditVersion
	rec.Com.TargetKey = id.PluginKey
	rec.Com.TargetClass = id.PluginClass
	rec.Com.TargetWorker = id.WorkerName()
	rec.Com.TargetType = target
	return rec
}

func mergeExtra(a, b map[string]interface{}) map[string]interface{} {
	if a == nil {
		a = map[string]interface{}{}
	}
	if b == nil {
		b = map[string]interface{}{}
	}
	return merge.Maps(a, b)
}

// FallbackRecordType implements Open Question 1: a store plugin may treat
// a top-level "record_type" convenience key under Ext as a last-resort
// routing hint when Com.RecordType carries no semantic value. The engine
// itself never writes or depends on this field.
func (r Record) FallbackRecordType() (string, bool) {
	if r.Com.RecordType != "" {
		return "", false
	}
	v, ok := r.Ext["record_type"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
