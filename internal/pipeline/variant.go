package pipeline

import (
	"fmt"
	"slices"

	"github.com/roach88/eventidx/internal/events"
)

// Variant selects which event kinds a pipeline indexes. Its name is also the
// pipeline's watermark key.
type Variant struct {
	Name  string
	Kinds []events.Kind
}

var (
	// VariantEvents indexes every market event.
	VariantEvents = Variant{Name: "events", Kinds: events.AllKinds()}

	// VariantAgent indexes agent registrations only.
	VariantAgent = Variant{Name: "agent", Kinds: []events.Kind{events.KindAgentRegistered}}
)

// Variants returns the known variants.
func Variants() []Variant {
	return []Variant{VariantEvents, VariantAgent}
}

// LookupVariant returns the variant with the given name.
func LookupVariant(name string) (Variant, error) {
	for _, v := range Variants() {
		if v.Name == name {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("unknown pipeline %q (want events or agent)", name)
}

// Indexes reports whether k is handled by the variant.
func (v Variant) Indexes(k events.Kind) bool {
	return slices.Contains(v.Kinds, k)
}
