package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("document_scopes: [/home/me]"))
	b := SumString("document_scopes: [/home/me]")
	if a != b {
		t.Fatalf("Sum = %q, SumString = %q", a, b)
	}
	if a == SumString("document_scopes: [/home/you]") {
		t.Error("different inputs produced the same digest")
	}
}
