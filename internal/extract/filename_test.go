package extract

import "testing"

func TestNameFromFilename(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fileName  string
		wantFirst string
		wantLast  string
	}{
		{"john_smith_cv.pdf", "John", "Smith"},
		{"CV-Jane-Doe-final.docx", "Jane", "Doe"},
		{"mary.anne.oconnor.pdf", "Mary", "Anne Oconnor"},
		{"resume_v2.pdf", "", ""},
		{"BOB.pdf", "Bob", ""},
		{"/tmp/uploads/alice_jones_updated_cv.txt", "Alice", "Jones"},
	}

	for _, tc := range cases {
		first, last := NameFromFilename(tc.fileName)
		if first != tc.wantFirst || last != tc.wantLast {
			t.Fatalf("NameFromFilename(%q) = (%q, %q), want (%q, %q)",
				tc.fileName, first, last, tc.wantFirst, tc.wantLast)
		}
	}
}
