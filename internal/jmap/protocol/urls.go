package protocol

// WellKnownPath is the well-known path for JMAP autodiscovery.
const WellKnownPath = "/.well-known/jmap"

// URLs holds the endpoint URLs advertised in a session. Download, upload
// and event source URLs are RFC 6570 level 1 templates; their {variables}
// are left for the client to expand.
type URLs struct {
	API         string
	Download    string
	Upload      string
	EventSource string
}

// URLsFromAddress builds the endpoint URLs for a service reachable at
// address (host:port). The address is used as is.
func URLsFromAddress(address string) URLs {
	base := "https://" + address
	return URLs{
		API:         base + "/api",
		Download:    base + "/download/{accountId}/{blobId}/{name}?accept={type}",
		Upload:      base + "/upload/{accountId}/",
		EventSource: base + "/eventsource?types={types}&closeafter={closeafter}&ping={ping}",
	}
}
