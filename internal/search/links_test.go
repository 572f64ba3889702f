package search

import "testing"

func TestResolveLink(t *testing.T) {
	cases := []struct {
		typ    EntityType
		id     string
		parent string
		want   string
	}{
		{TypePatient, "pat_1", "", "/patients/pat_1"},
		{TypeSession, "ses_1", "pat_1", "/patients/pat_1/sessions/ses_1"},
		{TypeInterview, "itv_1", "pat_1", "/patients/pat_1/interviews/itv_1"},
		{TypeTestAttempt, "att_1", "pat_1", "/patients/pat_1/test-attempts/att_1"},
		{TypeAttachment, "file_1", "pat_1", "/patients/pat_1/attachments/file_1"},
		{"bogus", "x", "y", ""},
	}
	for _, tc := range cases {
		if got := ResolveLink(tc.typ, tc.id, tc.parent); got != tc.want {
			t.Errorf("ResolveLink(%s) = %q, want %q", tc.typ, got, tc.want)
		}
	}
}
