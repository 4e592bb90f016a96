package cache

import "testing"

type orderID string

func (o orderID) String() string { return "order-" + string(o) }

func TestDeriveKey(t *testing.T) {
	n := 7

	tests := []struct {
		name  string
		table string
		hash  any
		rng   any
		want  string
	}{
		{"hash only", "Users", "Alice", nil, "users:alice"},
		{"hash and range", "Orders", "u1", "2024-01-01", "orders:u1:2024-01-01"},
		{"numeric hash", "Counters", 42, nil, "counters:42"},
		{"float matches int", "Counters", float64(42), nil, "counters:42"},
		{"numeric range", "Scores", "bob", 3, "scores:bob:3"},
		{"empty string range is present", "T", "h", "", "t:h:"},
		{"pointer is dereferenced", "T", &n, nil, "t:7"},
		{"stringer", "T", orderID("AB"), nil, "t:order-ab"},
		{"bool", "T", true, nil, "t:true"},
		{"large int", "Accounts", 1234567, nil, "accounts:1234567"},
		{"large float matches int", "Accounts", float64(1234567), nil, "accounts:1234567"},
		{"large float range", "Scores", "bob", float64(98765432101), "scores:bob:98765432101"},
		{"fractional float", "T", 0.0000025, nil, "t:0.0000025"},
		{"negative float", "T", float64(-3000000), nil, "t:-3000000"},
		{"uint", "T", uint64(5000000), nil, "t:5000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveKey(tt.table, tt.hash, tt.rng)
			if got != tt.want {
				t.Errorf("DeriveKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	first := DeriveKey("Orders", "U1", int64(9))
	for i := 0; i < 100; i++ {
		if got := DeriveKey("Orders", "U1", int64(9)); got != first {
			t.Fatalf("expected stable key %q, got %q", first, got)
		}
	}
}

func TestDeriveKey_CaseInsensitive(t *testing.T) {
	if DeriveKey("USERS", "ALICE", nil) != DeriveKey("users", "alice", nil) {
		t.Error("expected keys differing only by case to collide")
	}
}

func TestKeyDeriver(t *testing.T) {
	d := NewKeyDeriver("Orders")
	if got := d.DeriveKey("u1", "o1"); got != "orders:u1:o1" {
		t.Errorf("expected orders:u1:o1, got %q", got)
	}

	prefixed := NewKeyDeriver("Orders", WithKeyPrefix("Tenant-A"))
	if got := prefixed.DeriveKey("u1", nil); got != "tenant-a:orders:u1" {
		t.Errorf("expected tenant-a:orders:u1, got %q", got)
	}
}

func TestCanonical_Composite(t *testing.T) {
	got := Canonical([]string{"a", "b"})
	if got != `["a","b"]` {
		t.Errorf("expected JSON fallback, got %q", got)
	}

	var nilPtr *int
	if got := Canonical(nilPtr); got != "nil" {
		t.Errorf("expected nil, got %q", got)
	}
}
