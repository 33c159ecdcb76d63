package cart

import (
	"reflect"
	"testing"
)

func TestMergeLocalPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		remote []Entry
		local  []Entry
		want   []Entry
	}{
		{
			name:   "local quantity wins for shared item",
			remote: []Entry{{ItemID: "svc1", Qty: 5}, {ItemID: "svc2", Qty: 1}},
			local:  []Entry{{ItemID: "svc1", Qty: 2}},
			want:   []Entry{{ItemID: "svc1", Qty: 2}, {ItemID: "svc2", Qty: 1}},
		},
		{
			name:   "empty local keeps remote unchanged",
			remote: []Entry{{ItemID: "svc3", Qty: 1}},
			local:  nil,
			want:   []Entry{{ItemID: "svc3", Qty: 1}},
		},
		{
			name:   "empty remote keeps local unchanged",
			remote: nil,
			local:  []Entry{{ItemID: "svc1", Qty: 2}},
			want:   []Entry{{ItemID: "svc1", Qty: 2}},
		},
		{
			name:   "both empty stays empty",
			remote: nil,
			local:  nil,
			want:   []Entry{},
		},
		{
			name:   "union preserves ids unique to either side",
			remote: []Entry{{ItemID: "a", Qty: 1}, {ItemID: "b", Qty: 2}},
			local:  []Entry{{ItemID: "b", Qty: 9}, {ItemID: "c", Qty: 3}},
			want:   []Entry{{ItemID: "a", Qty: 1}, {ItemID: "b", Qty: 9}, {ItemID: "c", Qty: 3}},
		},
		{
			name:   "invalid remote entries are dropped before merging",
			remote: []Entry{{ItemID: "", Qty: 4}, {ItemID: "x", Qty: 0}},
			local:  []Entry{{ItemID: "y", Qty: 1}},
			want:   []Entry{{ItemID: "y", Qty: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.remote, tt.local)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Merge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeIdempotent(t *testing.T) {
	remote := []Entry{{ItemID: "svc1", Qty: 5}, {ItemID: "svc2", Qty: 1}}
	local := []Entry{{ItemID: "svc1", Qty: 2}, {ItemID: "svc4", Qty: 7}}

	m := Merge(remote, local)
	again := Merge(m, m)
	if !reflect.DeepEqual(again, m) {
		t.Fatalf("Merge(M, M) = %v, want %v", again, m)
	}
}

func TestValidateEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr bool
	}{
		{name: "nil is valid", entries: nil},
		{name: "positive quantities", entries: []Entry{{ItemID: "svc1", Qty: 2}}},
		{name: "zero quantity rejected", entries: []Entry{{ItemID: "svc1", Qty: 0}}, wantErr: true},
		{name: "negative quantity rejected", entries: []Entry{{ItemID: "svc1", Qty: -3}}, wantErr: true},
		{name: "blank item id rejected", entries: []Entry{{ItemID: "  ", Qty: 1}}, wantErr: true},
		{name: "duplicate item id rejected", entries: []Entry{{ItemID: "a", Qty: 1}, {ItemID: "a", Qty: 2}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntries(tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateEntries() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]Entry{
		{ItemID: "b", Qty: 2},
		{ItemID: "a", Qty: 1},
		{ItemID: "b", Qty: 3},
		{ItemID: "", Qty: 9},
		{ItemID: "c", Qty: 0},
	})
	want := []Entry{{ItemID: "a", Qty: 1}, {ItemID: "b", Qty: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize() = %v, want %v", got, want)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	// Insertion order must not matter for the round trip.
	in := []Entry{{ItemID: "svc2", Qty: 1}, {ItemID: "svc1", Qty: 2}}

	payload, err := EncodeEntries(in)
	if err != nil {
		t.Fatalf("EncodeEntries() error = %v", err)
	}
	got, ok := DecodeEntries(payload)
	if !ok {
		t.Fatalf("DecodeEntries() reported malformed payload")
	}
	want := []Entry{{ItemID: "svc1", Qty: 2}, {ItemID: "svc2", Qty: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip = %v, want %v", got, want)
	}
}

func TestDecodeEntriesMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantOK  bool
	}{
		{name: "garbage", payload: "{not json", wantOK: false},
		{name: "wrong shape", payload: `{"itemId":"a"}`, wantOK: false},
		{name: "empty array", payload: "[]", wantOK: true},
		{name: "junk entries dropped", payload: `[{"itemId":"a","qty":1},{"itemId":"","qty":4}]`, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeEntries(tt.payload)
			if ok != tt.wantOK {
				t.Fatalf("DecodeEntries() ok = %v, want %v", ok, tt.wantOK)
			}
			if got == nil {
				t.Fatalf("DecodeEntries() returned nil, want empty slice")
			}
			if !ok && len(got) != 0 {
				t.Fatalf("malformed payload should decode to empty, got %v", got)
			}
		})
	}
}
