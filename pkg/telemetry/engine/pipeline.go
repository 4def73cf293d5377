package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/parse"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/state"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/trace"
)

// pollCollection runs the full pipeline for one collection and returns true
// when the failure was a transport failure (so the caller can count toward
// the reconnect threshold). Exactly one trace entry is recorded per
// invocation, success or not.
func (e *Engine) pollCollection(ctx context.Context, def *models.CollectionDefinition) (transportFailure bool) {
	tr := trace.New(def.Name, e.cfg.Target.Vendor, e.clock.Now())
	defer func() {
		e.cfg.Traces.Put(tr)
		tr.Emit(e.logger)
	}()

	// 1. Execute.
	raw, err := e.channel.Run(ctx, def.Command)
	tr.RawReceived(raw, def.Command)
	if err != nil {
		tr.Delivered(string(models.ParserNone), "", nil, 0, "TransportError: "+err.Error(), e.clock.Now())
		e.logger.Warn("command failed", "collection", def.Name, "error", err.Error())
		return true
	}

	// 2–4. Sanitize, parser chain, normalize, coerce.
	outcome, err := e.cfg.Chain.Parse(raw, def, e.channel.Prompt(), tr)
	if err != nil {
		var all *parse.AllFailedError
		kind := "ParseError"
		if errors.As(err, &all) {
			kind = "AllParsersFailed"
		}
		e.publishError(def.Name, kind, err.Error(), tr)
		return false
	}

	// 5. Shape.
	env := e.cfg.Driver.Shape(def.Name, outcome.Rows)

	// 6. Driver post-process, contained: an error or panic publishes the
	// sentinel envelope instead of stalling the collection.
	env, err = e.postProcess(def.Name, env)
	if err != nil {
		tr.PostProcessed(def.Name, err.Error())
		e.publishError(def.Name, "PostProcessError", err.Error(), tr)
		return false
	}

	// 7. Publish.
	e.cfg.Store.Put(def.Name, env, state.PutMeta{
		ParsedBy: string(outcome.ParsedBy),
		Template: outcome.Template,
	})
	tr.Delivered(string(outcome.ParsedBy), outcome.Template, envelopeFields(env), len(outcome.Rows), "", e.clock.Now())
	return false
}

// postProcess invokes the driver transform with panic containment.
func (e *Engine) postProcess(collection string, env models.Envelope) (out models.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
		}
	}()
	return e.cfg.Driver.PostProcess(collection, env, e.cfg.Store)
}

// publishError records the error envelope for a collection. The state store
// retains the previous successful envelope alongside the error marker.
func (e *Engine) publishError(collection, kind, detail string, tr *trace.Trace) {
	env := models.ErrorEnvelope(collection, kind, detail)
	e.cfg.Store.Put(collection, env, state.PutMeta{ParsedBy: string(models.ParserNone)})
	tr.Delivered(string(models.ParserNone), "", nil, 0, kind+": "+detail, e.clock.Now())
}

func envelopeFields(env models.Envelope) []string {
	fields := make([]string, 0, len(env))
	for k := range env {
		fields = append(fields, k)
	}
	return fields
}
