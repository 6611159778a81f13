package hypervisor

import (
	"testing"

	"github.com/entgrid/entitled/internal/domain/consumer"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ABC-123-DEF", "abc-123-def"},
		{"already-lower", "already-lower"},
		{"MiXeD.HostName.Example", "mixed.hostname.example"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSetIdentifierNormalizesAtWrite(t *testing.T) {
	h := &HypervisorID{}
	h.SetIdentifier("HOST-A")
	if h.HypervisorID != "host-a" {
		t.Fatalf("stored identifier = %q, want %q", h.HypervisorID, "host-a")
	}
}

func TestSetConsumerDerivesOwner(t *testing.T) {
	c := &consumer.Consumer{ID: "cons-1", OwnerID: "org-7"}
	h := &HypervisorID{}

	h.SetConsumer(c)

	if h.ConsumerID != "cons-1" {
		t.Fatalf("ConsumerID = %q, want cons-1", h.ConsumerID)
	}
	if h.OwnerID != c.OwnerID {
		t.Fatalf("OwnerID = %q, want %q (derived from consumer)", h.OwnerID, c.OwnerID)
	}
}

func TestNewBindsAndNormalizes(t *testing.T) {
	c := &consumer.Consumer{ID: "cons-2", OwnerID: "org-9"}

	h := New(c, "ESX-Host-42")

	if h.HypervisorID != "esx-host-42" {
		t.Fatalf("identifier = %q, want esx-host-42", h.HypervisorID)
	}
	if h.OwnerID != "org-9" || h.ConsumerID != "cons-2" {
		t.Fatalf("binding = (%q, %q), want (org-9, cons-2)", h.OwnerID, h.ConsumerID)
	}
}
