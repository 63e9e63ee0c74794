package protocol

// Common capability URIs.
const (
	CoreCapability       = "urn:ietf:params:jmap:core"
	MailCapability       = "urn:ietf:params:jmap:mail"
	SubmissionCapability = "urn:ietf:params:jmap:submission"
)

// Core capability limits advertised by the gateway.
const (
	MaxSizeUpload         = 50_000_000
	MaxConcurrentUpload   = 4
	MaxSizeRequest        = 10_000_000
	MaxConcurrentRequests = 4
	MaxCallsInRequest     = 16
	MaxObjectsInGet       = 500
	MaxObjectsInSet       = 500
)

// CoreCapabilities returns the limits of the urn:ietf:params:jmap:core
// capability.
func CoreCapabilities() CapabilitiesObject {
	return CapabilitiesObject{
		MaxSizeUpload:         MaxSizeUpload,
		MaxConcurrentUpload:   MaxConcurrentUpload,
		MaxSizeRequest:        MaxSizeRequest,
		MaxConcurrentRequests: MaxConcurrentRequests,
		MaxCallsInRequest:     MaxCallsInRequest,
		MaxObjectsInGet:       MaxObjectsInGet,
		MaxObjectsInSet:       MaxObjectsInSet,
		// TODO: advertise i;ascii-casemap once Email/query sorting is backed by IMAP SORT.
		CollationAlgorithms: []string{},
	}
}

// Capabilities returns every capability the server supports, keyed by URI.
// A new map is returned on each call.
func Capabilities() map[string]CapabilitiesObject {
	return map[string]CapabilitiesObject{
		CoreCapability: CoreCapabilities(),
	}
}
