package blob

import "testing"

func TestObjectKey(t *testing.T) {
	got := ObjectKey("ten_1", "file_9", "report.pdf")
	want := "ten_1/file_9/report.pdf"
	if got != want {
		t.Fatalf("ObjectKey = %q, want %q", got, want)
	}
}
