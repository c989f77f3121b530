package audit

// Well known fact keys emitted by capture loaders
// Rules filter on these, so loaders should populate them whenever the
// capture carries enough information to derive them
const (
	FactOSFamily        = "os_family"
	FactSystemName      = "system_name"
	FactProducer        = "producer"
	FactProducerVersion = "producer_version"
	FactCaptureTime     = "capture_time"
)

// SystemFacts holds attributes describing one captured system
// Built by a capture loader, read-only to the engine
type SystemFacts map[string]string

// Get looks up a fact by key
func (s SystemFacts) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	val, ok := s[key]
	return val, ok
}

// System is a convenience getter for the system identifier, empty if unset
func (s SystemFacts) System() string {
	val, _ := s.Get(FactSystemName)
	return val
}

// Enumerator lists the systems that belong to one run
type Enumerator interface {
	// Systems implements Enumerator
	Systems() ([]string, error)
}

// CaptureProvider resolves a system identifier to its fact set and raw
// captured text, decoded to a consistent encoding by the loader
type CaptureProvider interface {
	// Capture implements CaptureProvider
	Capture(id string) (SystemFacts, string, error)
}

// CaptureSource is a full capture backend, implemented by loaders such as
// pkg/captures and by in-memory fixtures in tests
type CaptureSource interface {
	Enumerator
	CaptureProvider
}
