package gcp

import "testing"

func TestParseGSURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"simple", "gs://my-bucket/contract.pdf", "my-bucket", "contract.pdf", false},
		{"nested object", "gs://docs/2024/annex/a.pdf", "docs", "2024/annex/a.pdf", false},
		{"https is rejected", "https://bucket/object.pdf", "", "", true},
		{"missing object", "gs://bucket-only", "", "", true},
		{"empty bucket", "gs:///object.pdf", "", "", true},
		{"empty object", "gs://bucket/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, err := ParseGSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGSURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGSURI(%q) = (%q, %q), want (%q, %q)", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}
