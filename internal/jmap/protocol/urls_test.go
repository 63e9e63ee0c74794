package protocol

import "testing"

func TestURLsFromAddress(t *testing.T) {
	tests := []struct {
		address string
		want    URLs
	}{
		{
			address: "example.com:8080",
			want: URLs{
				API:         "https://example.com:8080/api",
				Download:    "https://example.com:8080/download/{accountId}/{blobId}/{name}?accept={type}",
				Upload:      "https://example.com:8080/upload/{accountId}/",
				EventSource: "https://example.com:8080/eventsource?types={types}&closeafter={closeafter}&ping={ping}",
			},
		},
		{
			address: "127.0.0.1:8080",
			want: URLs{
				API:         "https://127.0.0.1:8080/api",
				Download:    "https://127.0.0.1:8080/download/{accountId}/{blobId}/{name}?accept={type}",
				Upload:      "https://127.0.0.1:8080/upload/{accountId}/",
				EventSource: "https://127.0.0.1:8080/eventsource?types={types}&closeafter={closeafter}&ping={ping}",
			},
		},
		{
			// Not validated; passed through as is.
			address: "bad host",
			want: URLs{
				API:         "https://bad host/api",
				Download:    "https://bad host/download/{accountId}/{blobId}/{name}?accept={type}",
				Upload:      "https://bad host/upload/{accountId}/",
				EventSource: "https://bad host/eventsource?types={types}&closeafter={closeafter}&ping={ping}",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got := URLsFromAddress(tt.address)
			if got != tt.want {
				t.Errorf("URLsFromAddress(%q) = %+v, want %+v", tt.address, got, tt.want)
			}
		})
	}
}
