package models

import "testing"

func strPtr(s string) *string { return &s }

func TestTicketClaimed(t *testing.T) {
	tests := []struct {
		name    string
		staffID *string
		want    bool
	}{
		{"nil staff", nil, false},
		{"empty staff", strPtr(""), false},
		{"assigned", strPtr("staff-1"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := Ticket{StaffID: tt.staffID}
			if got := tk.Claimed(); got != tt.want {
				t.Errorf("Claimed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTicketSubtype(t *testing.T) {
	tests := []struct {
		ticketType string
		want       string
	}{
		{"contact-mods", "mods"},
		{"report-ingame", "ingame"},
		{"contact-", ""},
		{"nodash", ""},
		{"", ""},
	}
	for _, tt := range tests {
		tk := Ticket{TicketType: tt.ticketType}
		if got := tk.Subtype(); got != tt.want {
			t.Errorf("Subtype(%q) = %q, want %q", tt.ticketType, got, tt.want)
		}
	}
}
