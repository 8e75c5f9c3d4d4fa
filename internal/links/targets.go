package links

import (
	"fmt"

	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/sirupsen/logrus"
)

// TargetStage is the metrics stage name of the target normalizer
const TargetStage = "targets"

// TargetNormalizer rewrites `key \t target_ref` records into `key \t target_id`.
// The key column is opaque and passes through unchanged.
type TargetNormalizer struct {
	src      record.LineSource
	cat      Catalog
	res      Resolver
	kind     record.RefKind
	log      logrus.FieldLogger
	obs      metrics.Observer
	line     int
	key      string
	targetID int64
	err      error
}

// NewTargetNormalizer creates a TargetNormalizer; opts.TargetRef selects the target column kind
func NewTargetNormalizer(src record.LineSource, cat Catalog, res Resolver, opts Options) *TargetNormalizer {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TargetNormalizer{
		src:  src,
		cat:  cat,
		res:  res,
		kind: opts.TargetRef,
		log:  log,
		obs:  metrics.OrDiscard(opts.Observer),
	}
}

// Next advances to the next resolved target
func (t *TargetNormalizer) Next() bool {
	for t.src.Scan() {
		t.line++
		t.obs.Observe(TargetStage, metrics.Read)

		fields, err := record.Split(t.src.Text(), 2)
		var ref record.Ref
		if err == nil {
			ref, err = record.ParseRef(fields[1], t.kind)
		}
		if err != nil {
			t.obs.Observe(TargetStage, metrics.Malformed)
			t.log.Warnf("targets: skipping line %d: %v", t.line, err)
			continue
		}

		target, ok := t.cat.Lookup(ref)
		if !ok {
			t.obs.Observe(TargetStage, metrics.DropReason(string(UnknownTarget)))
			continue
		}
		if t.res != nil {
			if target, ok = t.res.Resolve(target); !ok {
				t.obs.Observe(TargetStage, metrics.DropReason(string(UnresolvedTarget)))
				continue
			}
		}

		t.obs.Observe(TargetStage, metrics.Emitted)
		t.key = fields[0]
		t.targetID = target
		return true
	}
	if err := t.src.Err(); err != nil {
		t.err = fmt.Errorf("failed to read targets: %w", err)
	}
	return false
}

// Target returns the current key and its resolved target page
func (t *TargetNormalizer) Target() (string, int64) {
	return t.key, t.targetID
}

// Err returns the first read error
func (t *TargetNormalizer) Err() error {
	return t.err
}
