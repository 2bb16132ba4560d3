package report

const (
	DefaultThreshold       = 95.0
	DefaultAmbiguousHeader = "Results:"
	DefaultNothingFound    = "No fractures/lesions found."
	DefaultFailure         = "An error occurred while processing the image. Please try again."
)

// Policy holds the wording and the confidence threshold that used to differ between bot variants.
type Policy struct {
	// Threshold in percent: a top class at or above it is reported alone.
	Threshold float64 `yaml:"threshold"`
	// AmbiguousClasses is how many ranked classes to list below the threshold; never less than 2.
	AmbiguousClasses int    `yaml:"ambiguous_classes"`
	AmbiguousHeader  string `yaml:"ambiguous_header"`
	NothingFound     string `yaml:"nothing_found"`
	FailureMessage   string `yaml:"failure_message"`
}

func DefaultPolicy() Policy {
	return Policy{
		Threshold:        DefaultThreshold,
		AmbiguousClasses: 2,
		AmbiguousHeader:  DefaultAmbiguousHeader,
		NothingFound:     DefaultNothingFound,
		FailureMessage:   DefaultFailure,
	}
}

// withDefaults fills zero fields, so a partially filled YAML block stays usable.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.AmbiguousClasses < 2 {
		p.AmbiguousClasses = d.AmbiguousClasses
	}
	if p.NothingFound == "" {
		p.NothingFound = d.NothingFound
	}
	if p.FailureMessage == "" {
		p.FailureMessage = d.FailureMessage
	}
	return p
}
