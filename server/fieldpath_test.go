package server

import (
	"testing"
)

func TestParseFieldPath(t *testing.T) {
	cases := []struct {
		in   string
		want FieldPath
	}{
		{"file", FieldPath{{Name: "file"}}},
		{"joint[logo]", FieldPath{{Name: "joint"}, {Name: "logo"}}},
		{"joint[logo][]", FieldPath{{Name: "joint"}, {Name: "logo"}, {Append: true}}},
		{"a[b][c]", FieldPath{{Name: "a"}, {Name: "b"}, {Name: "c"}}},
	}
	for _, tc := range cases {
		got, err := ParseFieldPath(tc.in)
		if err != nil {
			t.Errorf("ParseFieldPath(%q): %v", tc.in, err)
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("ParseFieldPath(%q) = %v", tc.in, got)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ParseFieldPath(%q)[%d] = %+v, want %+v", tc.in, i, got[i], tc.want[i])
			}
		}
		if got.String() != tc.in {
			t.Errorf("round trip %q -> %q", tc.in, got.String())
		}
	}
}

func TestParseFieldPathErrors(t *testing.T) {
	for _, in := range []string{"", "[x]", "a[b", "a[]x", "a[][b]", "a]b["} {
		if _, err := ParseFieldPath(in); err == nil {
			t.Errorf("ParseFieldPath(%q) accepted", in)
		}
	}
}

func TestRequestFilesSetGet(t *testing.T) {
	m := NewRequestFiles()
	p, _ := ParseFieldPath("joint[logo]")
	d := UploadDescriptor{Name: "logo.png"}
	if err := m.Set(p, d); err != nil {
		t.Fatal(err)
	}
	v, ok := m.Get(p)
	if !ok {
		t.Fatal("Get missed a just-set value")
	}
	if v.(UploadDescriptor).Name != "logo.png" {
		t.Errorf("got %+v", v)
	}
	m.Remove(p)
	if _, ok := m.Get(p); ok {
		t.Error("value survived Remove")
	}
}

func TestRequestFilesAppend(t *testing.T) {
	m := NewRequestFiles()
	p, _ := ParseFieldPath("docs[]")
	m.Set(p, UploadDescriptor{Name: "a.pdf"})
	m.Set(p, UploadDescriptor{Name: "b.pdf"})
	parent, _ := ParseFieldPath("docs")
	v, ok := m.Get(parent)
	if !ok {
		t.Fatal("append list missing")
	}
	list, ok := v.([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("got %#v, want list of 2", v)
	}
	if list[0].(UploadDescriptor).Name != "a.pdf" || list[1].(UploadDescriptor).Name != "b.pdf" {
		t.Errorf("append order lost: %#v", list)
	}
}

func TestRequestFilesNestedAppend(t *testing.T) {
	m := NewRequestFiles()
	p, _ := ParseFieldPath("joint[photos][]")
	m.Set(p, UploadDescriptor{Name: "1.jpg"})
	m.Set(p, UploadDescriptor{Name: "2.jpg"})
	parent, _ := ParseFieldPath("joint[photos]")
	v, ok := m.Get(parent)
	if !ok {
		t.Fatal("nested append list missing")
	}
	if list := v.([]interface{}); len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	root := m.Root()
	joint, ok := root["joint"].(map[string]interface{})
	if !ok {
		t.Fatalf("root tree = %#v", root)
	}
	if list := joint["photos"].([]interface{}); list[0].(UploadDescriptor).Name != "1.jpg" {
		t.Errorf("grafted tree order lost: %#v", list)
	}
}

func TestRequestFilesConflict(t *testing.T) {
	m := NewRequestFiles()
	leaf, _ := ParseFieldPath("a")
	m.Set(leaf, UploadDescriptor{Name: "x"})
	nested, _ := ParseFieldPath("a[b]")
	if err := m.Set(nested, UploadDescriptor{Name: "y"}); err == nil {
		t.Error("grafting under a file was accepted")
	}
}
