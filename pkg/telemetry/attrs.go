package telemetry

import (
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"
)

type SpanAttributes struct {
	ActionCategory string

	RunID   optional[string] // experiment.run_id
	Target  optional[string] // experiment.target
	Fuzzer  optional[string] // experiment.fuzzer
	Trial   optional[int]    // experiment.trial
	RNGSeed optional[int]    // experiment.rng_seed
	CPU     optional[int]    // experiment.resource.cpu
	GPU     optional[int]    // experiment.resource.gpu

	extraAttributes map[string]any
}

func NewSpanAttributes(actionCategory ActionCategory) *SpanAttributes {
	return &SpanAttributes{
		ActionCategory:  actionCategory.String(),
		extraAttributes: make(map[string]any),
	}
}

// returns an empty SpanAttributes instance with no action category.
// this is useful for creating a SpanAttributes instance that can be populated later.
func EmptySpanAttributes() *SpanAttributes {
	return &SpanAttributes{
		extraAttributes: make(map[string]any),
	}
}

// Merge updates the current SpanAttributes with values from another SpanAttributes.
// Values are only updated if they are set in the other SpanAttributes and not set in the current one.
// The ActionCategory is always updated when the other one has it.
func (o *SpanAttributes) Merge(other *SpanAttributes) {
	if other == nil {
		return
	}

	if other.ActionCategory != "" {
		o.ActionCategory = other.ActionCategory
	}

	mergeOptional(&o.RunID, &other.RunID)
	mergeOptional(&o.Target, &other.Target)
	mergeOptional(&o.Fuzzer, &other.Fuzzer)
	mergeOptional(&o.Trial, &other.Trial)
	mergeOptional(&o.RNGSeed, &other.RNGSeed)
	mergeOptional(&o.CPU, &other.CPU)
	mergeOptional(&o.GPU, &other.GPU)

	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	for k, v := range other.extraAttributes {
		if _, exists := o.extraAttributes[k]; !exists {
			o.extraAttributes[k] = v
		}
	}
}

func (o *SpanAttributes) WithRunID(val string) *SpanAttributes {
	o.RunID.Set(val)
	return o
}

func (o *SpanAttributes) WithJob(target, fuzzer string, trial, rngSeed int) *SpanAttributes {
	o.Target.Set(target)
	o.Fuzzer.Set(fuzzer)
	o.Trial.Set(trial)
	o.RNGSeed.Set(rngSeed)
	return o
}

func (o *SpanAttributes) WithCPU(val int) *SpanAttributes {
	o.CPU.Set(val)
	return o
}

func (o *SpanAttributes) WithGPU(val int) *SpanAttributes {
	o.GPU.Set(val)
	return o
}

func (o *SpanAttributes) WithExtraAttribute(key string, val any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	o.extraAttributes[key] = val
	return o
}

func (o *SpanAttributes) WithExtraAttributes(attrs map[string]any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	maps.Copy(o.extraAttributes, attrs)
	return o
}

func (o SpanAttributes) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if o.ActionCategory != "" {
		attrs = append(attrs, attribute.String("experiment.action.category", o.ActionCategory))
	}
	if o.RunID.set {
		attrs = append(attrs, attribute.String("experiment.run_id", o.RunID.val))
	}
	if o.Target.set {
		attrs = append(attrs, attribute.String("experiment.target", o.Target.val))
	}
	if o.Fuzzer.set {
		attrs = append(attrs, attribute.String("experiment.fuzzer", o.Fuzzer.val))
	}
	if o.Trial.set {
		attrs = append(attrs, attribute.Int("experiment.trial", o.Trial.val))
	}
	if o.RNGSeed.set {
		attrs = append(attrs, attribute.Int("experiment.rng_seed", o.RNGSeed.val))
	}
	if o.CPU.set {
		attrs = append(attrs, attribute.Int("experiment.resource.cpu", o.CPU.val))
	}
	if o.GPU.set {
		attrs = append(attrs, attribute.Int("experiment.resource.gpu", o.GPU.val))
	}

	for k, v := range o.extraAttributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	return attrs
}

type EventAttributes []attribute.KeyValue

func NewEventAttributes(attributes map[string]string) EventAttributes {
	attrs := make(EventAttributes, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type optional[T any] struct {
	val T
	set bool
}

func (o *optional[T]) Set(val T) { o.val = val; o.set = true }

func mergeOptional[T any](target, source *optional[T]) {
	if !target.set && source.set {
		target.val = source.val
		target.set = true
	}
}
